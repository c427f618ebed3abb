package ui

import (
	"fmt"
	"sort"

	"sqlspeak-console/internal/domain"

	. "maragu.dev/gomponents"
	. "maragu.dev/gomponents/html"
)

func identityPage(chrome pageChrome, account domain.Account, principal *domain.Principal, history []domain.HistoryEntry) Node {
	var successes, failures int
	for _, e := range history {
		switch domain.ParseStatusFilter(e.Status) {
		case domain.StatusSuccess:
			successes++
		case domain.StatusError:
			failures++
		}
	}

	roles := "-"
	if principal != nil && len(principal.Roles) > 0 {
		roles = stringsJoin(principal.Roles)
	}
	var id, displayName string
	if principal != nil {
		id, displayName = principal.ID, principal.DisplayName
	}

	return appPage(
		chrome,
		Div(
			Class(cardClass()),
			H2(Text("Signed-in account")),
			definitionRow("Username", orDash(account.Username)),
			definitionRow("Name", orDash(account.Name)),
			definitionRow("Object ID", orDash(account.ID)),
		),
		Div(
			Class(cardClass()),
			H2(Text("Query service principal")),
			definitionRow("ID", orDash(id)),
			definitionRow("Display name", orDash(displayName)),
			definitionRow("Roles", roles),
		),
		Div(
			Class(cardClass()),
			H2(Text("Activity")),
			definitionRow("Queries", fmt.Sprint(len(history))),
			definitionRow("Succeeded", fmt.Sprint(successes)),
			definitionRow("Failed", fmt.Sprint(failures)),
		),
	)
}

func schemaPage(chrome pageChrome, dataSources []string, snapshot *domain.SchemaSnapshot) Node {
	options := make([]Node, 0, len(dataSources))
	for _, ds := range dataSources {
		options = append(options, optionSelected(ds, snapshot.DataSource))
	}

	tables := make([]Node, 0, len(snapshot.Tables))
	for _, t := range snapshot.Tables {
		tables = append(tables, schemaTable(t))
	}
	if len(tables) == 0 {
		tables = append(tables, P(Class(mutedClass()), Text("No tables reported for this data source.")))
	}

	return appPage(
		chrome,
		Div(
			Class(cardClass()),
			Form(
				Method("get"),
				Action("/schema"),
				Class("d-flex flex-items-center gap-2"),
				Select(Name("data_source"), Group(options)),
				Button(Type("submit"), Class(secondaryButtonClass()), Text("Show")),
			),
		),
		Group(tables),
	)
}

// schemaTable renders one table description. Tables are expected to carry
// a name and a list of columns; anything else is shown as raw values.
func schemaTable(t map[string]any) Node {
	name, _ := t["name"].(string)
	if name == "" {
		name, _ = t["table"].(string)
	}
	if name == "" {
		name = "(unnamed)"
	}

	cols, _ := t["columns"].([]any)
	rows := make([]Node, 0, len(cols))
	for _, c := range cols {
		switch col := c.(type) {
		case map[string]any:
			rows = append(rows, Tr(
				Td(Text(cellString(col["name"]))),
				Td(Text(cellString(col["type"]))),
			))
		default:
			rows = append(rows, Tr(Td(Text(cellString(col))), Td()))
		}
	}

	var extra []Node
	keys := make([]string, 0, len(t))
	for k := range t {
		if k != "name" && k != "table" && k != "columns" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		extra = append(extra, definitionRow(k, cellString(t[k])))
	}

	return Div(
		Class(cardClass("table-wrap")),
		H3(Text(name)),
		Group(extra),
		Table(
			THead(Tr(Th(Text("Column")), Th(Text("Type")))),
			TBody(Group(rows)),
		),
	)
}

func definitionRow(label, value string) Node {
	return Div(
		Class("d-flex gap-2"),
		Strong(Text(label+":")),
		Span(Text(value)),
	)
}

func orDash(v string) string {
	if v == "" {
		return "-"
	}
	return v
}

func stringsJoin(values []string) string {
	if len(values) == 0 {
		return "-"
	}
	out := values[0]
	for i := 1; i < len(values); i++ {
		out += ", " + values[i]
	}
	return out
}
