// Package sheetstore keeps users as rows of a Google Sheets tab.
//
// Row 1 is a header. Each following row is one user:
//
//	A external_id | B - | C - | D status | E - | F customer_ref | G subscription_ref |
//	H last_event_id | I updated_at | J display_name | K handle | L created_at | M version
//
// A..I is the layout the payment webhook has always written; B, C and E are
// not owned by this store and are written back unchanged.
//
// Lookups scan the whole tab. Writes from this process are serialized; across
// processes the caller must hold the per-user lock (see internal/lock).
package sheetstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/suspectuso/premium-bot/internal/storage"
)

const (
	columns   = 13
	firstRow  = 2
	lastCol   = "M"
	valueMode = "RAW"
)

// Column indexes.
const (
	colExternalID = iota
	colB
	colC
	colStatus
	colE
	colCustomer
	colSubscription
	colLastEvent
	colUpdatedAt
	colDisplayName
	colHandle
	colCreatedAt
	colVersion
)

var header = []interface{}{
	"external_id", "", "", "status", "", "customer_ref", "subscription_ref",
	"last_event_id", "updated_at", "display_name", "handle", "created_at", "version",
}

type Store struct {
	srv           *sheets.Service
	spreadsheetID string
	sheet         string

	mu sync.Mutex
}

// New builds a store over the given spreadsheet and tab.
func New(ctx context.Context, spreadsheetID, sheet string, opts ...option.ClientOption) (*Store, error) {
	opts = append([]option.ClientOption{option.WithScopes(sheets.SpreadsheetsScope)}, opts...)
	srv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return &Store{
		srv:           srv,
		spreadsheetID: spreadsheetID,
		sheet:         sheet,
	}, nil
}

// EnsureHeader writes the header row when the tab is empty.
func (s *Store) EnsureHeader(ctx context.Context) error {
	resp, err := s.srv.Spreadsheets.Values.Get(s.spreadsheetID, s.sheet+"!A1:"+lastCol+"1").Context(ctx).Do()
	if err != nil {
		return unavailable("read header", err)
	}
	if len(resp.Values) > 0 && len(resp.Values[0]) > 0 {
		return nil
	}

	_, err = s.srv.Spreadsheets.Values.Update(s.spreadsheetID, s.sheet+"!A1:"+lastCol+"1", &sheets.ValueRange{
		Values: [][]interface{}{header},
	}).ValueInputOption(valueMode).Context(ctx).Do()
	if err != nil {
		return unavailable("write header", err)
	}
	return nil
}

func (s *Store) FindByExternalID(ctx context.Context, externalID string) (*storage.User, error) {
	u, _, _, err := s.find(ctx, externalID)
	return u, err
}

func (s *Store) Create(ctx context.Context, user *storage.User) (*storage.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, _, _, err := s.find(ctx, user.ExternalID)
	if err == nil {
		return nil, storage.ErrAlreadyExists
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	u := user.Clone()
	u.Version = 1

	_, err = s.srv.Spreadsheets.Values.Append(s.spreadsheetID, s.sheet+"!A:"+lastCol, &sheets.ValueRange{
		Values: [][]interface{}{toRow(u, nil)},
	}).ValueInputOption(valueMode).InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return nil, unavailable("append user", err)
	}
	return u, nil
}

func (s *Store) Update(ctx context.Context, user *storage.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, prev, rowNum, err := s.find(ctx, user.ExternalID)
	if err != nil {
		return err
	}
	if cur.Version != user.Version {
		return storage.ErrConflict
	}

	u := user.Clone()
	u.CreatedAt = cur.CreatedAt
	u.Version = cur.Version + 1

	rng := fmt.Sprintf("%s!A%d:%s%d", s.sheet, rowNum, lastCol, rowNum)
	_, err = s.srv.Spreadsheets.Values.Update(s.spreadsheetID, rng, &sheets.ValueRange{
		Values: [][]interface{}{toRow(u, prev)},
	}).ValueInputOption(valueMode).Context(ctx).Do()
	if err != nil {
		return unavailable("update user", err)
	}

	user.Version = u.Version
	return nil
}

// find scans the data rows and returns the match, its raw cells and its
// 1-based row number.
func (s *Store) find(ctx context.Context, externalID string) (*storage.User, []interface{}, int, error) {
	rng := fmt.Sprintf("%s!A%d:%s", s.sheet, firstRow, lastCol)
	resp, err := s.srv.Spreadsheets.Values.Get(s.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, nil, 0, unavailable("read users", err)
	}

	for i, row := range resp.Values {
		if cell(row, colExternalID) != externalID {
			continue
		}
		u, err := fromRow(row)
		if err != nil {
			return nil, nil, 0, fmt.Errorf("row %d: %w", i+firstRow, err)
		}
		return u, row, i + firstRow, nil
	}
	return nil, nil, 0, storage.ErrNotFound
}

// toRow renders u, carrying over the unowned cells of prev.
func toRow(u *storage.User, prev []interface{}) []interface{} {
	row := make([]interface{}, columns)
	for _, i := range []int{colB, colC, colE} {
		row[i] = cell(prev, i)
	}

	row[colExternalID] = u.ExternalID
	row[colStatus] = string(u.Status)
	row[colCustomer] = u.CustomerRef
	row[colSubscription] = u.SubscriptionRef
	row[colLastEvent] = u.LastAppliedEventID
	row[colUpdatedAt] = formatTime(u.UpdatedAt)
	row[colDisplayName] = u.DisplayName
	row[colHandle] = u.Handle
	row[colCreatedAt] = formatTime(u.CreatedAt)
	row[colVersion] = strconv.FormatInt(u.Version, 10)
	return row
}

func fromRow(row []interface{}) (*storage.User, error) {
	u := &storage.User{
		ExternalID:         cell(row, colExternalID),
		Status:             storage.Status(cell(row, colStatus)),
		CustomerRef:        cell(row, colCustomer),
		SubscriptionRef:    cell(row, colSubscription),
		LastAppliedEventID: cell(row, colLastEvent),
		DisplayName:        cell(row, colDisplayName),
		Handle:             cell(row, colHandle),
		Version:            1,
	}

	var err error
	if u.UpdatedAt, err = parseTime(cell(row, colUpdatedAt)); err != nil {
		return nil, fmt.Errorf("updated_at: %w", err)
	}
	if u.CreatedAt, err = parseTime(cell(row, colCreatedAt)); err != nil {
		return nil, fmt.Errorf("created_at: %w", err)
	}
	// Rows written before the version column existed start at 1.
	if v := cell(row, colVersion); v != "" {
		if u.Version, err = strconv.ParseInt(v, 10, 64); err != nil {
			return nil, fmt.Errorf("version: %w", err)
		}
	}
	return u, nil
}

func cell(row []interface{}, i int) string {
	if i >= len(row) || i >= columns || row[i] == nil {
		return ""
	}
	return fmt.Sprint(row[i])
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, v)
}

func unavailable(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code < http.StatusInternalServerError && gerr.Code != http.StatusTooManyRequests {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, storage.ErrUnavailable, err)
}
