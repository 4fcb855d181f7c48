// Package userstore provides a single-table DynamoDB data-access layer for
// users, built on the AWS SDK for Go v2.
//
// # Key Concepts
//
// Every user is stored as one item whose partition and sort key are both
// "USER#<id>", where the id is a ULID assigned at creation. Two global
// secondary indexes hang off the same item:
//   - GSI1 (GSI1PK = "EMAIL#<email>", GSI1SK = "USERNAME#<username>") answers
//     lookups by email address.
//   - GSI2 (GSI2PK = "USER#", GSI2SK = "USER#<id>") keeps every user in a
//     single partition ordered by id, which makes listing a paged query.
//
// Optional attributes use the tri-state [Optional]: absent, null, or present.
// Creates omit anything that is not present; updates replace the user
// wholesale and remove every optional attribute that is not present.
//
// # Basic Usage
//
//	table := userstore.NewTable("users")
//	store := userstore.NewStore(table, ddb)
//	svc := userstore.NewService(store)
//
//	u, err := svc.Create(ctx, userstore.UserFields{
//	    Username:  "ada",
//	    Email:     "ada@example.com",
//	    FirstName: userstore.Some("Ada"),
//	})
//
// # Pagination
//
// List returns a [Page] whose Cursor is an opaque token built from the key of
// the last returned user, hex(pk) + "." + hex(sk). Passing it back resumes
// the listing after that user; an empty cursor marks the last page.
//
//	page, err := svc.List(ctx, 25, "")
//	next, err := svc.List(ctx, 25, page.Cursor)
//
// # Errors
//
// Operations report [ErrNotFound], [ErrConflict], [ErrMalformedToken],
// [ErrInvalidInput] and [ErrUnavailable] through wrapped errors, and
// [MissingFieldError] for stored items without a required attribute.
package userstore
