package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/HilistonGit/redflag-automute/internal/domain"
)

var apiClient = &http.Client{Timeout: 10 * time.Second}

// callAPI sends a JSON request to the admin API and decodes the JSON response into out.
func callAPI(method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, strings.TrimRight(addrFlag, "/")+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := apiClient.Do(req)
	if err != nil {
		return fmt.Errorf("admin API unreachable at %s: %w", addrFlag, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error == "" {
			apiErr.Error = resp.Status
		}
		return fmt.Errorf("%s %s: %s", method, path, apiErr.Error)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type editResult struct {
	Result struct {
		Muted   []string `json:"muted"`
		Unmuted []string `json:"unmuted"`
	} `json:"result"`
	Persisted  bool   `json:"persisted"`
	WriteError string `json:"write_error"`
}

func printEdit(cmd *cobra.Command, r editResult) {
	w := cmd.OutOrStdout()
	if len(r.Result.Muted) > 0 {
		fmt.Fprintf(w, "muted: %s\n", strings.Join(r.Result.Muted, ", "))
	}
	if len(r.Result.Unmuted) > 0 {
		fmt.Fprintf(w, "unmuted: %s\n", strings.Join(r.Result.Unmuted, ", "))
	}
	if !r.Persisted {
		fmt.Fprintf(w, "warning: not saved to the shared list (%s); kept locally\n", r.WriteError)
	}
}

func runTag(cmd *cobra.Command, args []string) error {
	tag, err := domain.ParseSeverityTag(args[1])
	if err != nil {
		return err
	}

	var res editResult
	if err := callAPI(http.MethodPut, "/api/tags/"+url.PathEscape(args[0]), map[string]string{"tag": string(tag)}, &res); err != nil {
		return err
	}
	printEdit(cmd, res)
	return nil
}

func runUntag(cmd *cobra.Command, args []string) error {
	var res editResult
	if err := callAPI(http.MethodDelete, "/api/tags/"+url.PathEscape(args[0]), nil, &res); err != nil {
		return err
	}
	printEdit(cmd, res)
	return nil
}

func runList(cmd *cobra.Command, _ []string) error {
	path := "/api/tags"
	if listLocal {
		path = "/api/fallback"
	}

	var tags domain.Mapping
	if err := callAPI(http.MethodGet, path, nil, &tags); err != nil {
		return err
	}

	ids := make([]string, 0, len(tags))
	for id := range tags {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)

	w := cmd.OutOrStdout()
	for _, id := range ids {
		fmt.Fprintf(w, "%-24s %s\n", id, tags[domain.Identity(id)])
	}
	st := tags.Stats()
	fmt.Fprintf(w, "total: %d  red: %d  yellow: %d\n", st.Total, st.Primary, st.Secondary)
	return nil
}

func runStatus(cmd *cobra.Command, _ []string) error {
	var st map[string]any
	if err := callAPI(http.MethodGet, "/api/status", nil, &st); err != nil {
		return err
	}
	out, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
