// Package assert provides fluent assertion utilities for testing DynamoDB
// items and users produced by the userstore package.
//
// # Usage
//
//	import "github.com/nisimpson/userstore/dynamock/assert"
//
//	// Assert on DynamoDB items
//	assert.Items(t, client.Items()).
//		HasCount(3).
//		ContainsUser(id).
//		HasAttribute("Username", "ada")
//
//	// Assert on a single item
//	assert.DynamoDBItem(t, item).
//		IsUser(id).
//		HasAttribute("Email", "ada@example.com").
//		LacksAttribute("Summary")
//
//	// Assert on users
//	assert.Users(t, page.Users).
//		HasCount(2).
//		OrderedByID().
//		Unique()
package assert

import (
	"slices"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/nisimpson/userstore"
)

// ItemsAssertion provides fluent assertions for DynamoDB items.
type ItemsAssertion struct {
	t     testing.TB
	items []map[string]types.AttributeValue
}

// Items creates a new ItemsAssertion for the given DynamoDB items.
func Items(t testing.TB, items []map[string]types.AttributeValue) *ItemsAssertion {
	return &ItemsAssertion{t: t, items: items}
}

// HasCount asserts that the items collection has the expected count.
func (a *ItemsAssertion) HasCount(expected int) *ItemsAssertion {
	a.t.Helper()
	if len(a.items) != expected {
		a.t.Errorf("expected %d items, got %d", expected, len(a.items))
	}
	return a
}

// IsEmpty asserts that the items collection is empty.
func (a *ItemsAssertion) IsEmpty() *ItemsAssertion {
	a.t.Helper()
	return a.HasCount(0)
}

// IsNotEmpty asserts that the items collection is not empty.
func (a *ItemsAssertion) IsNotEmpty() *ItemsAssertion {
	a.t.Helper()
	if len(a.items) == 0 {
		a.t.Error("expected items to not be empty")
	}
	return a
}

// ContainsUser asserts that the items contain the user with the given id.
func (a *ItemsAssertion) ContainsUser(id string) *ItemsAssertion {
	a.t.Helper()
	pk, sk := userstore.UserKey(id)
	for _, item := range a.items {
		if stringAttr(item, userstore.AttributeNamePK) == pk && stringAttr(item, userstore.AttributeNameSK) == sk {
			return a
		}
	}
	a.t.Errorf("expected to find user %s in items", id)
	return a
}

// LacksUser asserts that no item belongs to the user with the given id.
func (a *ItemsAssertion) LacksUser(id string) *ItemsAssertion {
	a.t.Helper()
	pk, _ := userstore.UserKey(id)
	for _, item := range a.items {
		if stringAttr(item, userstore.AttributeNamePK) == pk {
			a.t.Errorf("expected no item for user %s", id)
			return a
		}
	}
	return a
}

// HasAttribute asserts that at least one item has the specified attribute with the expected value.
func (a *ItemsAssertion) HasAttribute(attributeName, expectedValue string) *ItemsAssertion {
	a.t.Helper()
	for _, item := range a.items {
		if v, ok := item[attributeName].(*types.AttributeValueMemberS); ok && v.Value == expectedValue {
			return a
		}
	}
	a.t.Errorf("expected to find attribute %s with value %s in items", attributeName, expectedValue)
	return a
}

// DynamoDBItemAssertion provides fluent assertions for individual DynamoDB items.
type DynamoDBItemAssertion struct {
	t    testing.TB
	item map[string]types.AttributeValue
}

// DynamoDBItem creates a new DynamoDBItemAssertion for the given item.
func DynamoDBItem(t testing.TB, item map[string]types.AttributeValue) *DynamoDBItemAssertion {
	return &DynamoDBItemAssertion{t: t, item: item}
}

// HasKey asserts that the item has the specified key with the expected value.
func (a *DynamoDBItemAssertion) HasKey(keyName, expectedValue string) *DynamoDBItemAssertion {
	a.t.Helper()
	if _, exists := a.item[keyName]; !exists {
		a.t.Errorf("expected item to have key %s", keyName)
		return a
	}
	if actual := stringAttr(a.item, keyName); actual != expectedValue {
		a.t.Errorf("expected key %s to have value %s, got %s", keyName, expectedValue, actual)
	}
	return a
}

// HasAttribute asserts that the item has the specified attribute with the expected value.
func (a *DynamoDBItemAssertion) HasAttribute(attrName, expectedValue string) *DynamoDBItemAssertion {
	a.t.Helper()
	return a.HasKey(attrName, expectedValue)
}

// LacksAttribute asserts that the item does not carry the attribute at all.
func (a *DynamoDBItemAssertion) LacksAttribute(attrName string) *DynamoDBItemAssertion {
	a.t.Helper()
	if _, exists := a.item[attrName]; exists {
		a.t.Errorf("expected item to lack attribute %s", attrName)
	}
	return a
}

// IsUser asserts that the item is keyed as the user with the given id, with
// matching email and list index keys.
func (a *DynamoDBItemAssertion) IsUser(id string) *DynamoDBItemAssertion {
	a.t.Helper()
	pk, sk := userstore.UserKey(id)
	gsi2pk, gsi2sk := userstore.ListIndexKey(id)
	gsi1pk, gsi1sk := userstore.EmailIndexKey(
		stringAttr(a.item, userstore.AttributeNameEmail),
		stringAttr(a.item, userstore.AttributeNameUsername),
	)

	return a.
		HasKey(userstore.AttributeNamePK, pk).
		HasKey(userstore.AttributeNameSK, sk).
		HasKey(userstore.AttributeNameUserID, id).
		HasKey(userstore.AttributeNameGSI1PK, gsi1pk).
		HasKey(userstore.AttributeNameGSI1SK, gsi1sk).
		HasKey(userstore.AttributeNameGSI2PK, gsi2pk).
		HasKey(userstore.AttributeNameGSI2SK, gsi2sk)
}

// UsersAssertion provides fluent assertions for lists of users.
type UsersAssertion struct {
	t     testing.TB
	users []userstore.User
}

// Users creates a new UsersAssertion for the given users.
func Users(t testing.TB, users []userstore.User) *UsersAssertion {
	return &UsersAssertion{t: t, users: users}
}

// HasCount asserts that the list has the expected length.
func (a *UsersAssertion) HasCount(expected int) *UsersAssertion {
	a.t.Helper()
	if len(a.users) != expected {
		a.t.Errorf("expected %d users, got %d", expected, len(a.users))
	}
	return a
}

// ContainsUser asserts that the list contains the user with the given id.
func (a *UsersAssertion) ContainsUser(id string) *UsersAssertion {
	a.t.Helper()
	if !slices.ContainsFunc(a.users, func(u userstore.User) bool { return u.UserID == id }) {
		a.t.Errorf("expected to find user %s", id)
	}
	return a
}

// OrderedByID asserts that ids ascend strictly.
func (a *UsersAssertion) OrderedByID() *UsersAssertion {
	a.t.Helper()
	for i := 1; i < len(a.users); i++ {
		if a.users[i-1].UserID >= a.users[i].UserID {
			a.t.Errorf("expected users ordered by id, %s precedes %s", a.users[i-1].UserID, a.users[i].UserID)
			return a
		}
	}
	return a
}

// Unique asserts that no id appears twice.
func (a *UsersAssertion) Unique() *UsersAssertion {
	a.t.Helper()
	seen := make(map[string]bool, len(a.users))
	for _, u := range a.users {
		if seen[u.UserID] {
			a.t.Errorf("user %s appears more than once", u.UserID)
		}
		seen[u.UserID] = true
	}
	return a
}

func stringAttr(item map[string]types.AttributeValue, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}
