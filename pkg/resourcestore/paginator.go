package resourcestore

import (
	"context"
	"fmt"
)

// ListAll drives gw.ListPage until the continuation token comes back empty
// and returns every summary under prefix in the order the pages arrived.
// An empty prefix listing yields an empty, non-nil slice.
//
// The result is not a snapshot: writes or deletes that race with the scan
// may be seen, missed or counted twice.
func ListAll(ctx context.Context, gw Gateway, prefix string) ([]ObjectSummary, error) {
	summaries := make([]ObjectSummary, 0)
	seen := make(map[string]struct{})

	token := ""
	for {
		page, err := gw.ListPage(ctx, prefix, token)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, page.Summaries...)

		if page.NextToken == "" {
			return summaries, nil
		}
		// A backend handing back a token it already issued would loop forever.
		if _, dup := seen[page.NextToken]; dup {
			return nil, &StorageError{
				Key:  prefix,
				Op:   "list",
				Kind: ErrUnavailable,
				Err:  fmt.Errorf("continuation token %q repeated", page.NextToken),
			}
		}
		seen[page.NextToken] = struct{}{}
		token = page.NextToken
	}
}
