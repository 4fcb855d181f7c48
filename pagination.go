package userstore

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// tokenSeparator joins the encoded partition and sort keys of a token.
// It is outside the hex alphabet, so the first occurrence always splits.
const tokenSeparator = "."

// EncodeToken builds an opaque continuation token from the partition and sort
// key of the last item of a page: hex(pk) + "." + hex(sk).
func EncodeToken(pk, sk string) string {
	return hex.EncodeToString([]byte(pk)) + tokenSeparator + hex.EncodeToString([]byte(sk))
}

// DecodeToken reverses [EncodeToken]. Any token that does not split into two
// hex halves of valid UTF-8 yields ErrMalformedToken.
func DecodeToken(token string) (pk, sk string, err error) {
	left, right, found := strings.Cut(token, tokenSeparator)
	if !found {
		return "", "", fmt.Errorf("%w: missing separator", ErrMalformedToken)
	}

	pk, err = decodeTokenPart(left)
	if err != nil {
		return "", "", fmt.Errorf("%w: partition key: %v", ErrMalformedToken, err)
	}
	sk, err = decodeTokenPart(right)
	if err != nil {
		return "", "", fmt.Errorf("%w: sort key: %v", ErrMalformedToken, err)
	}
	return pk, sk, nil
}

func decodeTokenPart(s string) (string, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", fmt.Errorf("invalid utf-8")
	}
	return string(b), nil
}

// Paginator handles pagination by converting last evaluated keys into string
// cursors for clients, and in turn converting client cursors into start keys
// to continue paging of query results.
type Paginator interface {
	// PageCursor generates a string token from the provided start key. Implementors
	// should return an empty token if the start key is nil or empty.
	PageCursor(ctx context.Context, lastkey Item) (string, error)
	// StartKey generates a dynamodb start key from the provided cursor. Implementors
	// should return a nil item if the cursor is an empty string.
	StartKey(ctx context.Context, cursor string) (Item, error)
}

// KeyPaginator implements Paginator by encoding the user key of the last
// item directly into the cursor. Cursors come from clients, so StartKey only
// accepts keys shaped like a user key.
type KeyPaginator struct{}

// PageCursor implements Paginator. If lastkey is empty, an empty string is returned.
func (KeyPaginator) PageCursor(_ context.Context, lastkey Item) (string, error) {
	if len(lastkey) == 0 {
		return "", nil
	}

	pk, err := stringAttribute(lastkey, AttributeNamePK)
	if err != nil {
		return "", fmt.Errorf("failed to read last key: %w", err)
	}
	sk, err := stringAttribute(lastkey, AttributeNameSK)
	if err != nil {
		return "", fmt.Errorf("failed to read last key: %w", err)
	}

	return EncodeToken(pk, sk), nil
}

// StartKey implements Paginator. The returned key carries both the table and
// list index attributes so it can resume a list index query.
func (KeyPaginator) StartKey(_ context.Context, cursor string) (Item, error) {
	if cursor == "" {
		return nil, nil
	}

	pk, sk, err := DecodeToken(cursor)
	if err != nil {
		return nil, err
	}

	id, ok := strings.CutPrefix(pk, KeyPrefixUser)
	if !ok || id == "" || pk != sk {
		return nil, fmt.Errorf("%w: not a user key", ErrMalformedToken)
	}

	gsi2pk, gsi2sk := ListIndexKey(id)
	return Item{
		AttributeNamePK:     &types.AttributeValueMemberS{Value: pk},
		AttributeNameSK:     &types.AttributeValueMemberS{Value: sk},
		AttributeNameGSI2PK: &types.AttributeValueMemberS{Value: gsi2pk},
		AttributeNameGSI2SK: &types.AttributeValueMemberS{Value: gsi2sk},
	}, nil
}

// Paginator returns a Paginator to extract and generate client cursors.
func (t *Table) Paginator() Paginator {
	return KeyPaginator{}
}

func stringAttribute(item Item, name string) (string, error) {
	av, ok := item[name]
	if !ok {
		return "", fmt.Errorf("attribute %s not found", name)
	}
	s, ok := av.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("attribute %s is not a string", name)
	}
	return s.Value, nil
}
