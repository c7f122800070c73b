package api

import (
	"context"
	"fmt"
	"net/url"
)

// maxPages bounds ListAll against a backend that keeps returning `next`.
const maxPages = 1000

// Page is one page of a paginated list.
type Page[T any] struct {
	Results  []T     `json:"results"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Count    int     `json:"count"`
}

// HasNext reports whether another page exists.
func (p Page[T]) HasNext() bool {
	return p.Next != nil && *p.Next != ""
}

// List fetches one page. path may be a relative path or a `next` link.
func List[T any](ctx context.Context, c *Client, path string, query url.Values) (Page[T], error) {
	var page Page[T]
	if err := c.Get(ctx, path, query, &page); err != nil {
		return Page[T]{}, err
	}
	return page, nil
}

// ListAll follows `next` links until exhausted and concatenates the results.
func ListAll[T any](ctx context.Context, c *Client, path string, query url.Values) ([]T, error) {
	var all []T
	next := path
	for i := 0; i < maxPages; i++ {
		page, err := List[T](ctx, c, next, query)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Results...)
		if !page.HasNext() {
			return all, nil
		}
		// next links already carry the query string
		next, query = *page.Next, nil
	}
	return nil, fmt.Errorf("api: %s returned more than %d pages", path, maxPages)
}
