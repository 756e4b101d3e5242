package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"conference-central/internal/domain"
)

type tableClient interface {
	GetEntity(ctx context.Context, partitionKey, rowKey string, options *aztables.GetEntityOptions) (aztables.GetEntityResponse, error)
	AddEntity(ctx context.Context, entity []byte, options *aztables.AddEntityOptions) (aztables.AddEntityResponse, error)
	UpdateEntity(ctx context.Context, entity []byte, options *aztables.UpdateEntityOptions) (aztables.UpdateEntityResponse, error)
	UpsertEntity(ctx context.Context, entity []byte, options *aztables.UpsertEntityOptions) (aztables.UpsertEntityResponse, error)
	DeleteEntity(ctx context.Context, partitionKey, rowKey string, options *aztables.DeleteEntityOptions) (aztables.DeleteEntityResponse, error)
	SubmitTransaction(ctx context.Context, actions []aztables.TransactionAction, options *aztables.SubmitTransactionOptions) (aztables.TransactionResponse, error)
	NewListEntitiesPager(options *aztables.ListEntitiesOptions) *runtime.Pager[aztables.ListEntitiesResponse]
}

// TablesStore keeps profiles, conferences and sessions in one Azure table.
// The partition key is the root user id of the entity's key path, so a
// profile, its conferences and their sessions share a partition the way an
// entity group would.
type TablesStore struct {
	table      tableClient
	crossGroup bool
	maxGroups  int
	attempts   int
}

// TablesOptions configures a TablesStore.
type TablesOptions struct {
	// CrossGroup allows transactions spanning partitions. They commit row by
	// row with ETag guards and are undone on failure, which is not atomic.
	// When false such transactions fail with ErrTransactionScopeExceeded.
	CrossGroup bool
	// MaxGroups caps the partitions a transaction may span.
	MaxGroups int
	// Attempts is how many times a transaction is tried on ETag conflicts.
	Attempts int
}

// NewTablesStore connects to the table named table using the storage
// connection string.
func NewTablesStore(connStr, table string, opts TablesOptions) (*TablesStore, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	return newTablesStore(svc.NewClient(table), opts), nil
}

func newTablesStore(client tableClient, opts TablesOptions) *TablesStore {
	if opts.MaxGroups <= 0 {
		opts.MaxGroups = MaxTransactionGroups
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 3
	}
	return &TablesStore{table: client, crossGroup: opts.CrossGroup, maxGroups: opts.MaxGroups, attempts: opts.Attempts}
}

const profileRowKey = "P"

func conferenceRowKey(id string) string { return "C|" + id }

func sessionRowPrefix(conferenceID string) string { return "C|" + conferenceID + "|S|" }

func sessionRowKey(key domain.SessionKey) string { return sessionRowPrefix(key.Conference.ID) + key.ID }

// entity carries the keys and kind shared by every row.
type entity struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
	Kind         string `json:"Kind"`
}

type profileEntity struct {
	entity
	DisplayName            string `json:"DisplayName"`
	MainEmail              string `json:"MainEmail"`
	TeeShirtSize           string `json:"TeeShirtSize"`
	ConferenceKeysToAttend string `json:"ConferenceKeysToAttend"`
	SessionKeysWishlist    string `json:"SessionKeysWishlist"`
}

type conferenceEntity struct {
	entity
	ConferenceID    string `json:"ConferenceId"`
	OrganizerUserID string `json:"OrganizerUserId"`
	Name            string `json:"Name"`
	Description     string `json:"Description,omitempty"`
	Topics          string `json:"Topics"`
	City            string `json:"City"`
	StartDate       string `json:"StartDate,omitempty"`
	Month           int    `json:"Month"`
	EndDate         string `json:"EndDate,omitempty"`
	MaxAttendees    int    `json:"MaxAttendees"`
	SeatsAvailable  int    `json:"SeatsAvailable"`
}

type sessionEntity struct {
	entity
	SessionID     string `json:"SessionId"`
	ConferenceID  string `json:"ConferenceId"`
	Name          string `json:"Name"`
	Highlights    string `json:"Highlights,omitempty"`
	Speaker       string `json:"Speaker"`
	Duration      int    `json:"Duration"`
	TypeOfSession string `json:"TypeOfSession"`
	Date          string `json:"Date,omitempty"`
	StartTime     *int   `json:"StartTime,omitempty"`
}

func encodeList(v []string) string {
	if len(v) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func decodeList(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}
	var v []string
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, err
	}
	if len(v) == 0 {
		return nil, nil
	}
	return v, nil
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.DateOnly)
}

func parseStoredDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func encodeProfile(p domain.Profile) ([]byte, error) {
	return json.Marshal(profileEntity{
		entity:                 entity{PartitionKey: p.UserID, RowKey: profileRowKey, Kind: domain.KindProfile},
		DisplayName:            p.DisplayName,
		MainEmail:              p.MainEmail,
		TeeShirtSize:           string(p.TeeShirtSize),
		ConferenceKeysToAttend: encodeList(p.ConferenceKeysToAttend),
		SessionKeysWishlist:    encodeList(p.SessionKeysWishlist),
	})
}

func decodeProfile(data []byte) (domain.Profile, error) {
	var ent profileEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Profile{}, err
	}
	attending, err := decodeList(ent.ConferenceKeysToAttend)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("decode attendance of %s: %w", ent.PartitionKey, err)
	}
	wishlist, err := decodeList(ent.SessionKeysWishlist)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("decode wishlist of %s: %w", ent.PartitionKey, err)
	}
	return domain.Profile{
		UserID:                 ent.PartitionKey,
		DisplayName:            ent.DisplayName,
		MainEmail:              ent.MainEmail,
		TeeShirtSize:           domain.TeeShirtSize(ent.TeeShirtSize),
		ConferenceKeysToAttend: attending,
		SessionKeysWishlist:    wishlist,
	}, nil
}

func encodeConference(c domain.Conference) ([]byte, error) {
	return json.Marshal(conferenceEntity{
		entity:          entity{PartitionKey: c.Key.Group(), RowKey: conferenceRowKey(c.Key.ID), Kind: domain.KindConference},
		ConferenceID:    c.Key.ID,
		OrganizerUserID: c.OrganizerUserID,
		Name:            c.Name,
		Description:     c.Description,
		Topics:          encodeList(c.Topics),
		City:            c.City,
		StartDate:       formatDate(c.StartDate),
		Month:           c.Month,
		EndDate:         formatDate(c.EndDate),
		MaxAttendees:    c.MaxAttendees,
		SeatsAvailable:  c.SeatsAvailable,
	})
}

func decodeConference(data []byte) (domain.Conference, error) {
	var ent conferenceEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Conference{}, err
	}
	if ent.Kind != domain.KindConference {
		return domain.Conference{}, errWrongKind
	}
	topics, err := decodeList(ent.Topics)
	if err != nil {
		return domain.Conference{}, fmt.Errorf("decode topics of %s: %w", ent.ConferenceID, err)
	}
	start, err := parseStoredDate(ent.StartDate)
	if err != nil {
		return domain.Conference{}, err
	}
	end, err := parseStoredDate(ent.EndDate)
	if err != nil {
		return domain.Conference{}, err
	}
	return domain.Conference{
		Key:             domain.ConferenceKey{OrganizerID: ent.PartitionKey, ID: ent.ConferenceID},
		Name:            ent.Name,
		Description:     ent.Description,
		OrganizerUserID: ent.OrganizerUserID,
		Topics:          topics,
		City:            ent.City,
		StartDate:       start,
		Month:           ent.Month,
		EndDate:         end,
		MaxAttendees:    ent.MaxAttendees,
		SeatsAvailable:  ent.SeatsAvailable,
	}, nil
}

func encodeSession(s domain.Session) ([]byte, error) {
	return json.Marshal(sessionEntity{
		entity:        entity{PartitionKey: s.Key.Group(), RowKey: sessionRowKey(s.Key), Kind: domain.KindSession},
		SessionID:     s.Key.ID,
		ConferenceID:  s.Key.Conference.ID,
		Name:          s.Name,
		Highlights:    s.Highlights,
		Speaker:       s.Speaker,
		Duration:      s.Duration,
		TypeOfSession: s.TypeOfSession,
		Date:          formatDate(s.Date),
		StartTime:     s.StartTime,
	})
}

func decodeSession(data []byte) (domain.Session, error) {
	var ent sessionEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Session{}, err
	}
	if ent.Kind != domain.KindSession {
		return domain.Session{}, errWrongKind
	}
	date, err := parseStoredDate(ent.Date)
	if err != nil {
		return domain.Session{}, err
	}
	return domain.Session{
		Key: domain.SessionKey{
			Conference: domain.ConferenceKey{OrganizerID: ent.PartitionKey, ID: ent.ConferenceID},
			ID:         ent.SessionID,
		},
		Name:          ent.Name,
		Highlights:    ent.Highlights,
		Speaker:       ent.Speaker,
		Duration:      ent.Duration,
		TypeOfSession: ent.TypeOfSession,
		Date:          date,
		StartTime:     ent.StartTime,
	}, nil
}

var errWrongKind = errors.New("entity has unexpected kind")

func isStatus(err error, codes ...int) bool {
	var respErr *azcore.ResponseError
	if !errors.As(err, &respErr) {
		return false
	}
	for _, c := range codes {
		if respErr.StatusCode == c {
			return true
		}
	}
	return false
}

// getEntity returns nil data when the entity does not exist.
func (s *TablesStore) getEntity(ctx context.Context, pk, rk string) ([]byte, azcore.ETag, error) {
	resp, err := s.table.GetEntity(ctx, pk, rk, nil)
	if err != nil {
		if isStatus(err, 404) {
			return nil, "", nil
		}
		return nil, "", err
	}
	return resp.Value, resp.ETag, nil
}

func (s *TablesStore) upsert(ctx context.Context, payload []byte) error {
	_, err := s.table.UpsertEntity(ctx, payload, &aztables.UpsertEntityOptions{UpdateMode: aztables.UpdateModeReplace})
	return err
}

func (s *TablesStore) list(ctx context.Context, filter string) ([][]byte, error) {
	pager := s.table.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	var out [][]byte
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, resp.Entities...)
	}
	return out, nil
}

func (s *TablesStore) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	data, _, err := s.getEntity(ctx, userID, profileRowKey)
	if err != nil || data == nil {
		return nil, err
	}
	p, err := decodeProfile(data)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *TablesStore) PutProfile(ctx context.Context, p domain.Profile) error {
	payload, err := encodeProfile(p)
	if err != nil {
		return err
	}
	return s.upsert(ctx, payload)
}

func (s *TablesStore) GetConference(ctx context.Context, key domain.ConferenceKey) (*domain.Conference, error) {
	data, _, err := s.getEntity(ctx, key.Group(), conferenceRowKey(key.ID))
	if err != nil || data == nil {
		return nil, err
	}
	c, err := decodeConference(data)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *TablesStore) GetConferences(ctx context.Context, keys []domain.ConferenceKey) ([]domain.Conference, error) {
	out := make([]domain.Conference, 0, len(keys))
	for _, k := range keys {
		c, err := s.GetConference(ctx, k)
		if err != nil {
			return nil, err
		}
		if c != nil {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (s *TablesStore) PutConference(ctx context.Context, c domain.Conference) error {
	payload, err := encodeConference(c)
	if err != nil {
		return err
	}
	return s.upsert(ctx, payload)
}

// listConferences runs filter and keeps the decoded conferences accepted by
// keep. The in-process check is authoritative; filter only narrows the scan.
func (s *TablesStore) listConferences(ctx context.Context, filter string, keep func(domain.Conference) bool) ([]domain.Conference, error) {
	rows, err := s.list(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Conference, 0, len(rows))
	for _, row := range rows {
		c, err := decodeConference(row)
		if errors.Is(err, errWrongKind) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if keep(c) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *TablesStore) ConferencesByOrganizer(ctx context.Context, userID string) ([]domain.Conference, error) {
	filter := and(eq("PartitionKey", userID), eq("Kind", domain.KindConference))
	return s.listConferences(ctx, filter, func(c domain.Conference) bool { return c.Key.OrganizerID == userID })
}

func (s *TablesStore) QueryConferences(ctx context.Context, plan domain.QueryPlan) ([]domain.Conference, error) {
	confs, err := s.listConferences(ctx, conferenceFilter(plan), plan.Match)
	if err != nil {
		return nil, err
	}
	plan.Sort(confs)
	return confs, nil
}

func (s *TablesStore) ConferencesWithSeats(ctx context.Context, min, max int) ([]domain.Conference, error) {
	return s.listConferences(ctx, seatsFilter(min, max), func(c domain.Conference) bool {
		return c.SeatsAvailable >= min && c.SeatsAvailable <= max
	})
}

func (s *TablesStore) GetSession(ctx context.Context, key domain.SessionKey) (*domain.Session, error) {
	data, _, err := s.getEntity(ctx, key.Group(), sessionRowKey(key))
	if err != nil || data == nil {
		return nil, err
	}
	sess, err := decodeSession(data)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *TablesStore) GetSessions(ctx context.Context, keys []domain.SessionKey) ([]domain.Session, error) {
	out := make([]domain.Session, 0, len(keys))
	for _, k := range keys {
		sess, err := s.GetSession(ctx, k)
		if err != nil {
			return nil, err
		}
		if sess != nil {
			out = append(out, *sess)
		}
	}
	return out, nil
}

func (s *TablesStore) PutSession(ctx context.Context, sess domain.Session) error {
	payload, err := encodeSession(sess)
	if err != nil {
		return err
	}
	return s.upsert(ctx, payload)
}

func (s *TablesStore) listSessions(ctx context.Context, filter string, keep func(domain.Session) bool) ([]domain.Session, error) {
	rows, err := s.list(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Session, 0, len(rows))
	for _, row := range rows {
		sess, err := decodeSession(row)
		if errors.Is(err, errWrongKind) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if keep(sess) {
			out = append(out, sess)
		}
	}
	return out, nil
}

func (s *TablesStore) SessionsByConference(ctx context.Context, key domain.ConferenceKey, filter domain.SessionFilter) ([]domain.Session, error) {
	return s.listSessions(ctx, ancestorSessionsFilter(key, filter), func(sess domain.Session) bool {
		return sess.Key.Conference == key && filter.Match(sess)
	})
}

func (s *TablesStore) Sessions(ctx context.Context, filter domain.SessionFilter) ([]domain.Session, error) {
	clauses := append([]string{eq("Kind", domain.KindSession)}, sessionFilter(filter)...)
	return s.listSessions(ctx, and(clauses...), filter.Match)
}

func (s *TablesStore) AllocateIDs(ctx context.Context, n int) ([]string, error) {
	return allocateIDs(n), nil
}
