package queries

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownQuery = errors.New("unknown query")
	// ErrUnsupported marks a query the driver has no payload for. The runner
	// exits with a dedicated code and the orchestrator skips the variation.
	ErrUnsupported = errors.New("query not supported by driver")
)

// Reference is the driver whose payload texts are recorded in reports.
const Reference = "pgx"

// Query is one benchmarked statement. Payloads are keyed by driver name or,
// as a fallback, by backend name.
type Query struct {
	Name     string
	Payloads map[string]string
}

func (q Query) Payload(driver, backend string) (string, error) {
	if p, ok := q.Payloads[driver]; ok {
		return p, nil
	}
	if p, ok := q.Payloads[backend]; ok {
		return p, nil
	}
	return "", fmt.Errorf("%w: %s has no %s payload", ErrUnsupported, driver, q.Name)
}

var catalog = []Query{
	{
		Name: "simple_select",
		Payloads: map[string]string{
			"postgres":  "SELECT id from sa_tbl_1",
			"redis":     "SMEMBERS sa_tbl_1:ids",
			"mongo":     `{"find": "sa_tbl_1", "projection": {"_id": 1}, "batchSize": 1000}`,
			"cassandra": "SELECT id FROM sa_tbl_1",
		},
	},
	{
		Name: "join_select",
		Payloads: map[string]string{
			"postgres": "SELECT t1.id, t1.name, t2.email FROM sa_tbl_1 t1 " +
				"JOIN sa_tbl_2 t2 ON t2.id = t1.satable2_id",
			"mongo": `{"aggregate": "sa_tbl_1", "pipeline": [` +
				`{"$lookup": {"from": "sa_tbl_2", "localField": "satable2_id", "foreignField": "_id", "as": "t2"}},` +
				`{"$unwind": "$t2"},` +
				`{"$project": {"name": 1, "t2.email": 1}}], "cursor": {"batchSize": 1000}}`,
		},
	},
	{
		Name: "simple_insert",
		Payloads: map[string]string{
			"postgres": "INSERT INTO sa_tbl_1 (name, email, phone, satable2_id, custom_json) " +
				`VALUES ('name', 'email@email.com', '12345678', 1, '{"external_id": 0, "name": "name"}')`,
			"redis": "RPUSH sa_tbl_1:inserted name email@email.com 12345678",
			"mongo": `{"insert": "sa_tbl_1", "documents": [` +
				`{"name": "name", "email": "email@email.com", "phone": "12345678", "satable2_id": 1}]}`,
			"cassandra": "INSERT INTO sa_tbl_1 (id, name, email, phone, satable2_id) " +
				"VALUES (uuid(), 'name', 'email@email.com', '12345678', 1)",
		},
	},
}

func Names() []string {
	names := make([]string, len(catalog))
	for i, q := range catalog {
		names[i] = q.Name
	}
	return names
}

func Lookup(name string) (Query, error) {
	for _, q := range catalog {
		if q.Name == name {
			return q, nil
		}
	}
	return Query{}, fmt.Errorf("%w: %q", ErrUnknownQuery, name)
}

// Texts returns the reference payload of every named query, in order.
func Texts(names []string) ([]string, error) {
	texts := make([]string, len(names))
	for i, name := range names {
		q, err := Lookup(name)
		if err != nil {
			return nil, err
		}
		if texts[i], err = q.Payload(Reference, "postgres"); err != nil {
			return nil, err
		}
	}
	return texts, nil
}
