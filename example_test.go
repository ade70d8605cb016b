package entsql_test

import (
	"fmt"

	"github.com/zoobzio/dbml"

	"github.com/zoobzio/entsql"
	"github.com/zoobzio/entsql/postgres"
)

func Example() {
	project := dbml.NewProject("shop")
	orders := dbml.NewTable("orders")
	orders.AddColumn(dbml.NewColumn("id", "bigint"))
	orders.AddColumn(dbml.NewColumn("status", "varchar"))
	project.AddTable(orders)

	model, err := entsql.ParseModel([]byte(`
sets:
  - name: Orders
    table: orders
    keys: [Id]
    properties:
      - {name: Id, type: Int64, column: id}
      - {name: Status, type: String, nullable: true, column: status}
`))
	if err != nil {
		panic(err)
	}
	ws, err := entsql.NewWorkspace(project, model)
	if err != nil {
		panic(err)
	}

	o := entsql.Bind(ws.Scan("Orders"), "o")
	f := entsql.Bind(entsql.Filter(o, entsql.Eq(entsql.Prop(o.Ref(), "Status"), entsql.Param("status", entsql.String, false))), "f")
	query := entsql.Project(f, entsql.As(entsql.Prop(f.Ref(), "Id"), "Id"))

	result, err := entsql.NewTranslator(entsql.Options{UseDatabaseNullSemantics: true}).Translate(query, postgres.New())
	if err != nil {
		panic(err)
	}
	fmt.Println(result.SQL)
	fmt.Println(result.RequiredParams)
	// Output:
	// SELECT "Extent1"."id" AS "Id" FROM "orders" AS "Extent1" WHERE "Extent1"."status" = $1
	// [status]
}
