// Package main is the entry point for the schema registry admin CLI.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

var (
	serverURL   string
	contextName string
	output      string
	timeout     time.Duration
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "schema-registry-admin",
		Short: "Admin CLI for the schema registry",
		Long:  `A command-line tool for inspecting and managing subjects, configs, modes, and contexts in a schema registry cluster.`,
	}

	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "http://localhost:8081", "Schema registry server URL")
	rootCmd.PersistentFlags().StringVarP(&contextName, "context", "c", "", "Registry context to operate in (default: the default context)")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "Output format: table, json")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")

	subjectCmd := &cobra.Command{
		Use:   "subject",
		Short: "Manage subjects",
	}
	subjectListCmd := &cobra.Command{
		Use:   "list",
		Short: "List subjects",
		RunE:  listSubjects,
	}
	subjectListCmd.Flags().Bool("deleted", false, "Include soft-deleted subjects")
	subjectVersionsCmd := &cobra.Command{
		Use:   "versions <subject>",
		Short: "List versions of a subject",
		Args:  cobra.ExactArgs(1),
		RunE:  listVersions,
	}
	subjectDeleteCmd := &cobra.Command{
		Use:   "delete <subject>",
		Short: "Delete a subject (soft by default)",
		Args:  cobra.ExactArgs(1),
		RunE:  deleteSubject,
	}
	subjectDeleteCmd.Flags().Bool("permanent", false, "Hard-delete: tombstone every version (requires prior soft delete)")
	subjectCmd.AddCommand(subjectListCmd, subjectVersionsCmd, subjectDeleteCmd)

	schemaCmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect schemas",
	}
	schemaGetCmd := &cobra.Command{
		Use:   "get <subject> [version]",
		Short: "Get a schema by subject and version (default: latest)",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  getSchema,
	}
	schemaByIDCmd := &cobra.Command{
		Use:   "id <id>",
		Short: "Get a schema by its global id",
		Args:  cobra.ExactArgs(1),
		RunE:  getSchemaByID,
	}
	schemaCmd.AddCommand(schemaGetCmd, schemaByIDCmd)

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage compatibility configuration",
	}
	configGetCmd := &cobra.Command{
		Use:   "get [subject]",
		Short: "Get the global or per-subject compatibility level",
		Args:  cobra.MaximumNArgs(1),
		RunE:  getConfig,
	}
	configSetCmd := &cobra.Command{
		Use:   "set <level> [subject]",
		Short: "Set the global or per-subject compatibility level",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  setConfig,
	}
	configCmd.AddCommand(configGetCmd, configSetCmd)

	modeCmd := &cobra.Command{
		Use:   "mode",
		Short: "Manage registry mode",
	}
	modeGetCmd := &cobra.Command{
		Use:   "get [subject]",
		Short: "Get the global or per-subject mode",
		Args:  cobra.MaximumNArgs(1),
		RunE:  getMode,
	}
	modeSetCmd := &cobra.Command{
		Use:   "set <mode> [subject]",
		Short: "Set the global or per-subject mode (READWRITE, READONLY, READONLY_OVERRIDE, IMPORT)",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  setMode,
	}
	modeSetCmd.Flags().Bool("force", false, "Force the transition even if subjects already exist (IMPORT)")
	modeCmd.AddCommand(modeGetCmd, modeSetCmd)

	contextsCmd := &cobra.Command{
		Use:   "contexts",
		Short: "List known registry contexts",
		RunE:  listContexts,
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("schema-registry-admin %s (commit: %s, built: %s)\n", version, commit, buildDate)
		},
	}

	rootCmd.AddCommand(subjectCmd, schemaCmd, configCmd, modeCmd, contextsCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// baseURL prefixes context-scoped routes when --context names a non-default
// context.
func baseURL() string {
	if contextName == "" {
		return serverURL
	}
	return serverURL + "/contexts/" + url.PathEscape(contextName)
}

func request(method, path string, body any) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, baseURL()+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/vnd.schemaregistry.v1+json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		var remote struct {
			ErrorCode int    `json:"error_code"`
			Message   string `json:"message"`
		}
		if json.Unmarshal(data, &remote) == nil && remote.Message != "" {
			return nil, fmt.Errorf("%s (error code %d)", remote.Message, remote.ErrorCode)
		}
		return nil, fmt.Errorf("server returned %s", resp.Status)
	}
	return data, nil
}

func printJSON(data []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		_, err = os.Stdout.Write(data)
		return err
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(os.Stdout)
	return err
}

func listSubjects(cmd *cobra.Command, _ []string) error {
	path := "/subjects"
	if deleted, _ := cmd.Flags().GetBool("deleted"); deleted {
		path += "?deleted=true"
	}
	data, err := request(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if output == "json" {
		return printJSON(data)
	}
	var subjects []string
	if err := json.Unmarshal(data, &subjects); err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SUBJECT")
	for _, s := range subjects {
		fmt.Fprintln(w, s)
	}
	return w.Flush()
}

func listVersions(_ *cobra.Command, args []string) error {
	data, err := request(http.MethodGet, "/subjects/"+url.PathEscape(args[0])+"/versions", nil)
	if err != nil {
		return err
	}
	return printJSON(data)
}

func deleteSubject(cmd *cobra.Command, args []string) error {
	path := "/subjects/" + url.PathEscape(args[0])
	if permanent, _ := cmd.Flags().GetBool("permanent"); permanent {
		path += "?permanent=true"
	}
	data, err := request(http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	var versions []int
	if err := json.Unmarshal(data, &versions); err != nil {
		return printJSON(data)
	}
	fmt.Printf("deleted versions: %v\n", versions)
	return nil
}

func getSchema(_ *cobra.Command, args []string) error {
	versionStr := "latest"
	if len(args) == 2 {
		if _, err := strconv.Atoi(args[1]); err != nil && args[1] != "latest" {
			return fmt.Errorf("invalid version %q", args[1])
		}
		versionStr = args[1]
	}
	data, err := request(http.MethodGet, "/subjects/"+url.PathEscape(args[0])+"/versions/"+versionStr, nil)
	if err != nil {
		return err
	}
	return printJSON(data)
}

func getSchemaByID(_ *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid schema id %q", args[0])
	}
	data, err := request(http.MethodGet, fmt.Sprintf("/schemas/ids/%d", id), nil)
	if err != nil {
		return err
	}
	return printJSON(data)
}

func getConfig(_ *cobra.Command, args []string) error {
	path := "/config"
	if len(args) == 1 {
		path += "/" + url.PathEscape(args[0])
	}
	data, err := request(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return printJSON(data)
}

func setConfig(_ *cobra.Command, args []string) error {
	path := "/config"
	if len(args) == 2 {
		path += "/" + url.PathEscape(args[1])
	}
	data, err := request(http.MethodPut, path, map[string]string{"compatibility": args[0]})
	if err != nil {
		return err
	}
	return printJSON(data)
}

func getMode(_ *cobra.Command, args []string) error {
	path := "/mode"
	if len(args) == 1 {
		path += "/" + url.PathEscape(args[0])
	}
	data, err := request(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return printJSON(data)
}

func setMode(cmd *cobra.Command, args []string) error {
	path := "/mode"
	if len(args) == 2 {
		path += "/" + url.PathEscape(args[1])
	}
	if force, _ := cmd.Flags().GetBool("force"); force {
		path += "?force=true"
	}
	data, err := request(http.MethodPut, path, map[string]string{"mode": args[0]})
	if err != nil {
		return err
	}
	return printJSON(data)
}

func listContexts(_ *cobra.Command, _ []string) error {
	data, err := request(http.MethodGet, "/contexts", nil)
	if err != nil {
		return err
	}
	return printJSON(data)
}
