package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Project is one entry of the Cloud Resource Manager project list,
// trimmed to the fields project auto-discovery needs.
type Project struct {
	ProjectID string `json:"projectId"`
	Name      string `json:"name"`
	State     string `json:"lifecycleState"`
}

// GetProjectList lists the Cloud projects visible to the authenticated
// account (SPEC_FULL.md §4.3), adapted from the teacher's
// client.GetProjectList. Useful for operator tooling when
// cfg.Gemini.ProjectID is unset and SetupUser's discovery doesn't surface
// the project the operator actually wants.
func (c *Client) GetProjectList(ctx context.Context) ([]Project, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://cloudresourcemanager.googleapis.com/v1/projects", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("GetProjectList: status %d: %s", resp.StatusCode, string(body))
	}

	var out struct {
		Projects []Project `json:"projects"`
	}
	if err = json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	return out.Projects, nil
}

// projectNames joins project ids for the onboarding-failure diagnostic in
// SetupUser.
func projectNames(projects []Project) string {
	ids := make([]string, len(projects))
	for i, p := range projects {
		ids[i] = p.ProjectID
	}
	return strings.Join(ids, ", ")
}
