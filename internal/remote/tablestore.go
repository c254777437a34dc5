package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"chorecal/internal/model"
)

// TableStore keeps tasks and persons in Azure Table Storage. Entities are
// partitioned by account and keyed by id.
type TableStore struct {
	taskTable   *aztables.Client
	personTable *aztables.Client
	account     string
}

// NewTableStore creates a TableStore from a storage connection string.
// account is the partition used for deletes, which only carry an id.
func NewTableStore(connStr, tasksTable, personsTable, account string) (*TableStore, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, fmt.Errorf("azure tables: %w", err)
	}
	return &TableStore{
		taskTable:   svc.NewClient(tasksTable),
		personTable: svc.NewClient(personsTable),
		account:     account,
	}, nil
}

// EnsureTables creates both tables, tolerating ones that already exist.
func (s *TableStore) EnsureTables(ctx context.Context) error {
	for _, c := range []*aztables.Client{s.taskTable, s.personTable} {
		if _, err := c.CreateTable(ctx, nil); err != nil {
			var respErr *azcore.ResponseError
			if !(errors.As(err, &respErr) && respErr.ErrorCode == string(aztables.TableAlreadyExists)) {
				return fmt.Errorf("create table: %w", err)
			}
		}
	}
	return nil
}

type taskEntity struct {
	aztables.Entity
	Name         string `json:"Name"`
	DueDate      string `json:"DueDate"`
	IsCompleted  bool   `json:"IsCompleted"`
	AssignedTo   string `json:"AssignedTo"`
	Notes        string `json:"Notes"`
	RepeatOption string `json:"RepeatOption"`
	ParentTaskID string `json:"ParentTaskID"`
	CreatedAt    string `json:"CreatedAt"`
}

type personEntity struct {
	aztables.Entity
	Name  string `json:"Name"`
	Icon  string `json:"Icon"`
	Color string `json:"Color"`
}

func (s *TableStore) partition(owner string) string {
	if owner == "" {
		return s.account
	}
	return owner
}

func toTaskEntity(rec TaskRecord, pk string) taskEntity {
	return taskEntity{
		Entity:       aztables.Entity{PartitionKey: pk, RowKey: rec.ID},
		Name:         rec.Name,
		DueDate:      rec.DueDate,
		IsCompleted:  rec.IsCompleted,
		AssignedTo:   model.StringValue(rec.AssignedTo),
		Notes:        model.StringValue(rec.Notes),
		RepeatOption: rec.RepeatOption,
		ParentTaskID: model.StringValue(rec.ParentTaskID),
		CreatedAt:    rec.CreatedAt,
	}
}

func (e taskEntity) record() TaskRecord {
	return TaskRecord{
		ID:           e.RowKey,
		OwnerID:      e.PartitionKey,
		Name:         e.Name,
		DueDate:      e.DueDate,
		IsCompleted:  e.IsCompleted,
		AssignedTo:   model.StringPtr(e.AssignedTo),
		Notes:        model.StringPtr(e.Notes),
		RepeatOption: e.RepeatOption,
		ParentTaskID: model.StringPtr(e.ParentTaskID),
		CreatedAt:    e.CreatedAt,
	}
}

func partitionFilter(account string) string {
	return "PartitionKey eq '" + strings.ReplaceAll(account, "'", "''") + "'"
}

// FetchTasks retrieves all tasks in the account's partition.
func (s *TableStore) FetchTasks(ctx context.Context, accountID string) ([]TaskRecord, error) {
	filter := partitionFilter(accountID)
	pager := s.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	out := []TaskRecord{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list tasks: %w", err)
		}
		for _, raw := range resp.Entities {
			var ent taskEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, fmt.Errorf("decode task entity: %w", err)
			}
			out = append(out, ent.record())
		}
	}
	return out, nil
}

func (s *TableStore) UpsertTask(ctx context.Context, rec TaskRecord) error {
	payload, err := json.Marshal(toTaskEntity(rec, s.partition(rec.OwnerID)))
	if err != nil {
		return err
	}
	if _, err := s.taskTable.UpsertEntity(ctx, payload, nil); err != nil {
		return fmt.Errorf("upsert task %s: %w", rec.ID, err)
	}
	return nil
}

// DeleteTask removes the task from the configured account's partition. A
// missing entity counts as deleted.
func (s *TableStore) DeleteTask(ctx context.Context, id string) error {
	match := azcore.ETagAny
	_, err := s.taskTable.DeleteEntity(ctx, s.account, id, &aztables.DeleteEntityOptions{IfMatch: &match})
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == 404 {
			return nil
		}
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	return nil
}

func (s *TableStore) FetchPersons(ctx context.Context, accountID string) ([]PersonRecord, error) {
	filter := partitionFilter(accountID)
	pager := s.personTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	out := []PersonRecord{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list persons: %w", err)
		}
		for _, raw := range resp.Entities {
			var ent personEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, fmt.Errorf("decode person entity: %w", err)
			}
			out = append(out, PersonRecord{
				ID:      ent.RowKey,
				OwnerID: ent.PartitionKey,
				Name:    ent.Name,
				Icon:    ent.Icon,
				Color:   ent.Color,
			})
		}
	}
	return out, nil
}

func (s *TableStore) UpsertPerson(ctx context.Context, rec PersonRecord) error {
	payload, err := json.Marshal(personEntity{
		Entity: aztables.Entity{PartitionKey: s.partition(rec.OwnerID), RowKey: rec.ID},
		Name:   rec.Name,
		Icon:   rec.Icon,
		Color:  rec.Color,
	})
	if err != nil {
		return err
	}
	if _, err := s.personTable.UpsertEntity(ctx, payload, nil); err != nil {
		return fmt.Errorf("upsert person %s: %w", rec.ID, err)
	}
	return nil
}

var _ Client = (*TableStore)(nil)
