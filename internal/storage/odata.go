package storage

import (
	"strconv"
	"strings"

	"conference-central/internal/domain"
)

// Table properties that conference filters translate to.
var filterProperties = map[domain.FilterField]string{
	domain.FieldCity:         "City",
	domain.FieldMonth:        "Month",
	domain.FieldMaxAttendees: "MaxAttendees",
}

var odataOperators = map[domain.Operator]string{
	domain.OpEQ:   "eq",
	domain.OpGT:   "gt",
	domain.OpGTEQ: "ge",
	domain.OpLT:   "lt",
	domain.OpLTEQ: "le",
	domain.OpNE:   "ne",
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func eq(prop, value string) string {
	return prop + " eq " + quote(value)
}

func and(clauses ...string) string {
	out := make([]string, 0, len(clauses))
	for _, c := range clauses {
		if c != "" {
			out = append(out, c)
		}
	}
	return strings.Join(out, " and ")
}

// conferenceFilter renders the server-side part of a plan. Topics is stored
// as an encoded list the table service cannot compare, so topic filters are
// left to the in-process match.
func conferenceFilter(plan domain.QueryPlan) string {
	clauses := []string{eq("Kind", domain.KindConference)}
	for _, f := range plan.Filters {
		prop, ok := filterProperties[f.Field]
		if !ok {
			continue
		}
		var value string
		if f.Field.Kind() == domain.KindInt {
			value = strconv.Itoa(f.Int)
		} else {
			value = quote(f.Str)
		}
		clauses = append(clauses, prop+" "+odataOperators[f.Operator]+" "+value)
	}
	return and(clauses...)
}

func seatsFilter(min, max int) string {
	return and(
		eq("Kind", domain.KindConference),
		"SeatsAvailable ge "+strconv.Itoa(min),
		"SeatsAvailable le "+strconv.Itoa(max),
	)
}

func sessionFilter(filter domain.SessionFilter) []string {
	var clauses []string
	if filter.Speaker != "" {
		clauses = append(clauses, eq("Speaker", filter.Speaker))
	}
	if filter.TypeOfSession != "" {
		clauses = append(clauses, eq("TypeOfSession", filter.TypeOfSession))
	}
	return clauses
}

// ancestorSessionsFilter selects the sessions stored under a conference row.
func ancestorSessionsFilter(key domain.ConferenceKey, filter domain.SessionFilter) string {
	prefix := sessionRowPrefix(key.ID)
	clauses := []string{
		eq("PartitionKey", key.Group()),
		"RowKey gt " + quote(prefix),
		"RowKey lt " + quote(prefix[:len(prefix)-1]+"}"),
	}
	return and(append(clauses, sessionFilter(filter)...)...)
}
