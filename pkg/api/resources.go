package api

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Record is an entity as the backend serializes it.
type Record = map[string]any

// Resource is a REST collection rooted at Path.
type Resource struct {
	client *Client
	Name   string
	Path   string
}

// Resource returns a collection rooted at path.
func (c *Client) Resource(name, path string) *Resource {
	return &Resource{client: c, Name: name, Path: "/" + strings.Trim(path, "/") + "/"}
}

// Employees is the staff collection.
func (c *Client) Employees() *Resource { return c.Resource("employees", "api/user/users") }

// Clients is the care-recipient collection.
func (c *Client) Clients() *Resource { return c.Resource("clients", "api/user/clients") }

// CarePlans holds care plans; each wizard section patches one plan.
func (c *Client) CarePlans() *Resource { return c.Resource("care-plans", "api/rostering/careplans") }

// InternalRequests are staff-originated requests.
func (c *Client) InternalRequests() *Resource {
	return c.Resource("internal-requests", "api/talent-engine/requests")
}

// ExternalRequests are client-originated service requests.
func (c *Client) ExternalRequests() *Resource {
	return c.Resource("external-requests", "api/rostering/requests")
}

// ResourceByName resolves the collections wizard definitions refer to.
func (c *Client) ResourceByName(name string) (*Resource, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "employees", "employee":
		return c.Employees(), nil
	case "clients", "client":
		return c.Clients(), nil
	case "care-plans", "careplans", "care-plan":
		return c.CarePlans(), nil
	case "internal-requests", "internal-request":
		return c.InternalRequests(), nil
	case "external-requests", "external-request":
		return c.ExternalRequests(), nil
	default:
		return nil, fmt.Errorf("api: unknown resource %q", name)
	}
}

func (r *Resource) item(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", errors.New("api: resource id is required")
	}
	return r.Path + url.PathEscape(id) + "/", nil
}

// Get fetches one record.
func (r *Resource) Get(ctx context.Context, id string) (Record, error) {
	path, err := r.item(id)
	if err != nil {
		return nil, err
	}
	var out Record
	if err := r.client.Get(ctx, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// List fetches one page of records.
func (r *Resource) List(ctx context.Context, query url.Values) (Page[Record], error) {
	return List[Record](ctx, r.client, r.Path, query)
}

// All fetches every page.
func (r *Resource) All(ctx context.Context, query url.Values) ([]Record, error) {
	return ListAll[Record](ctx, r.client, r.Path, query)
}

// Create posts payload.
func (r *Resource) Create(ctx context.Context, payload Record) (Record, error) {
	var out Record
	if err := r.client.Post(ctx, r.Path, payload, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Update patches the record with id.
func (r *Resource) Update(ctx context.Context, id string, payload Record) (Record, error) {
	path, err := r.item(id)
	if err != nil {
		return nil, err
	}
	var out Record
	if err := r.client.Patch(ctx, path, payload, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes the record with id.
func (r *Resource) Delete(ctx context.Context, id string) error {
	path, err := r.item(id)
	if err != nil {
		return err
	}
	return r.client.Delete(ctx, path)
}

// Action posts to a detail route such as `requests/{id}/approve/`.
func (r *Resource) Action(ctx context.Context, id, action string, payload Record) (Record, error) {
	path, err := r.item(id)
	if err != nil {
		return nil, err
	}
	var out Record
	var body any
	if payload != nil {
		body = payload
	}
	if err := r.client.Post(ctx, path+strings.Trim(action, "/")+"/", body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ApproveExternalRequest approves a client service request.
func (c *Client) ApproveExternalRequest(ctx context.Context, id string) (Record, error) {
	return c.ExternalRequests().Action(ctx, id, "approve", nil)
}

// DeclineExternalRequest declines a client service request.
func (c *Client) DeclineExternalRequest(ctx context.Context, id string) (Record, error) {
	return c.ExternalRequests().Action(ctx, id, "decline", nil)
}
