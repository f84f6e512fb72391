// keyset.go
//
// Cursor-based keyset pagination over an ordered relation. Used by the bulk
// resynchronization path and dependency fan-out to walk large result sets
// without offset scans.

package queries

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Configuration errors. Both indicate caller bugs, not data conditions.
var (
	ErrBeforeAndAfter = errors.New("before and after cannot both be present")
	ErrCursorArity    = errors.New("number of cursor values does not match the number of key fields")
)

// DefaultPageSize applies when the caller supplies no count or a
// non-positive one.
const DefaultPageSize = 100

// KeyField maps a presented field name to its underlying column reference,
// e.g. {Name: "id", Column: "editions.id"}.
type KeyField struct {
	Name   string
	Column string
}

// Client supplies the base relation to paginate over.
type Client interface {
	// Query returns a fresh gorm query scoped to the relation, including
	// any joins and filters. The paginator adds ordering, cursor filtering
	// and the limit.
	Query() *gorm.DB
	// Fields returns the select expressions presented in each result row,
	// in addition to the key fields.
	Fields() []string
}

// Order directions.
const (
	Ascending  = "asc"
	Descending = "desc"
)

// KeysetPagination pages over a client's relation using a compound
// comparison on the ordering key tuple. At most one of before/after may be
// given; before yields the page immediately preceding the cursor in the
// caller's original order.
type KeysetPagination struct {
	client    Client
	key       []KeyField
	order     string
	count     int
	previous  []string
	backwards bool

	results []map[string]interface{}
	fetched bool
}

// NewKeysetPagination validates the configuration and returns a paginator.
// A nil key defaults to {id -> id}; a non-positive count defaults to
// DefaultPageSize.
func NewKeysetPagination(client Client, key []KeyField, order string, count int, before, after []string) (*KeysetPagination, error) {
	if len(key) == 0 {
		key = []KeyField{{Name: "id", Column: "id"}}
	}
	if order == "" {
		order = Ascending
	}
	if count <= 0 {
		count = DefaultPageSize
	}

	if len(before) > 0 && len(after) > 0 {
		return nil, ErrBeforeAndAfter
	}

	p := &KeysetPagination{
		client: client,
		key:    key,
		order:  order,
		count:  count,
	}

	if len(before) > 0 {
		p.previous = before
		p.backwards = true
	} else {
		p.previous = after
	}

	if len(p.previous) > 0 && len(p.previous) != len(key) {
		return nil, ErrCursorArity
	}

	return p, nil
}

// Call runs the paginated query and returns the page in the caller's
// original order.
func (p *KeysetPagination) Call() ([]map[string]interface{}, error) {
	if p.fetched {
		return p.results, nil
	}

	rows := []map[string]interface{}{}
	if err := p.paginatedQuery().Find(&rows).Error; err != nil {
		return nil, err
	}

	// A backwards page is fetched in reversed order and flipped so the
	// caller always sees its own ordering.
	if p.backwards {
		for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
			rows[i], rows[j] = rows[j], rows[i]
		}
	}

	p.results = rows
	p.fetched = true
	return p.results, nil
}

// NextBeforeKey returns the cursor tuple of the first row of the current
// page, nil when the page is empty. Call must have run first.
func (p *KeysetPagination) NextBeforeKey() []string {
	if len(p.results) == 0 {
		return nil
	}
	return p.keyForRecord(p.results[0])
}

// NextAfterKey returns the cursor tuple of the last row of the current page,
// nil when the page is empty.
func (p *KeysetPagination) NextAfterKey() []string {
	if len(p.results) == 0 {
		return nil
	}
	return p.keyForRecord(p.results[len(p.results)-1])
}

// HasNextBefore probes for at least one record preceding the current page.
func (p *KeysetPagination) HasNextBefore() (bool, error) {
	cursor := p.NextBeforeKey()
	if cursor == nil {
		return false, nil
	}
	probe, err := NewKeysetPagination(p.client, p.key, p.order, 1, cursor, nil)
	if err != nil {
		return false, err
	}
	rows, err := probe.Call()
	if err != nil {
		return false, err
	}
	return len(rows) >= 1, nil
}

// HasNextAfter probes for at least one record following the current page.
func (p *KeysetPagination) HasNextAfter() (bool, error) {
	cursor := p.NextAfterKey()
	if cursor == nil {
		return false, nil
	}
	probe, err := NewKeysetPagination(p.client, p.key, p.order, 1, nil, cursor)
	if err != nil {
		return false, err
	}
	rows, err := probe.Call()
	if err != nil {
		return false, err
	}
	return len(rows) >= 1, nil
}

func (p *KeysetPagination) effectiveOrder() string {
	if !p.backwards {
		return p.order
	}
	if p.order == Ascending {
		return Descending
	}
	return Ascending
}

func (p *KeysetPagination) paginatedQuery() *gorm.DB {
	q := p.client.Query().Select(p.selectFields()).Order(p.orderClause()).Limit(p.count)
	if len(p.previous) > 0 {
		args := make([]interface{}, len(p.previous))
		for i, v := range p.previous {
			args[i] = v
		}
		q = q.Where(p.whereClause(), args...)
	}
	return q
}

// selectFields exposes every client field plus each key field aliased to its
// presented name.
func (p *KeysetPagination) selectFields() string {
	seen := map[string]bool{}
	fields := []string{}
	for _, f := range p.client.Fields() {
		if !seen[f] {
			seen[f] = true
			fields = append(fields, f)
		}
	}
	for _, k := range p.key {
		alias := fmt.Sprintf("%s AS %s", k.Column, k.Name)
		if !seen[k.Name] && !seen[alias] {
			seen[k.Name] = true
			fields = append(fields, alias)
		}
	}
	return strings.Join(fields, ", ")
}

func (p *KeysetPagination) orderClause() string {
	order := p.effectiveOrder()
	parts := make([]string, len(p.key))
	for i, k := range p.key {
		parts[i] = fmt.Sprintf("%s %s", k.Column, order)
	}
	return strings.Join(parts, ", ")
}

// whereClause builds a single compound row comparison over all key fields,
// e.g. (editions.id, editions.updated_at) > (?, ?). Comparing the tuple in
// one expression is what keeps multi-field keys stable; field-by-field
// comparison would skip or repeat rows on ties.
func (p *KeysetPagination) whereClause() string {
	lhs := make([]string, len(p.key))
	for i, k := range p.key {
		lhs[i] = k.Column
	}
	rhs := strings.TrimSuffix(strings.Repeat("?, ", len(p.key)), ", ")

	op := ">"
	if p.effectiveOrder() == Descending {
		op = "<"
	}
	return fmt.Sprintf("(%s) %s (%s)", strings.Join(lhs, ", "), op, rhs)
}

// keyForRecord projects a result row to its cursor tuple. Timestamps keep
// full sub-second precision so a timestamp-led key neither skips nor repeats
// rows across pages; everything else uses its natural string.
func (p *KeysetPagination) keyForRecord(record map[string]interface{}) []string {
	cursor := make([]string, len(p.key))
	for i, k := range p.key {
		cursor[i] = encodeCursorValue(record[k.Name])
	}
	return cursor
}

func encodeCursorValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case *time.Time:
		if t == nil {
			return ""
		}
		return t.UTC().Format(time.RFC3339Nano)
	case []byte:
		return string(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
