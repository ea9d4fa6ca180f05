package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"agentd/pkg/types"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// buildRootCmd constructs the Cobra command tree for the agentd admin CLI.
func buildRootCmd() *cobra.Command {
	addr := "http://127.0.0.1:8080"
	if v := os.Getenv("AGENTD_ADDR"); v != "" {
		if strings.HasPrefix(v, ":") {
			v = "http://127.0.0.1" + v
		}
		addr = v
	}

	root := &cobra.Command{
		Use:           "agentctl",
		Short:         "Admin CLI for the agentd admission plane",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&addr, "addr", addr, "agentd base URL (defaults AGENTD_ADDR)")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Print the daemon status document",
		RunE: func(cmd *cobra.Command, args []string) error {
			return getJSON(addr + "/status")
		},
	}

	var (
		tier     string
		taskType string
		class    string
		role     string
		resource string
		wait     bool
	)
	submitCmd := &cobra.Command{
		Use:   "submit [input...]",
		Short: "Submit a request",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := types.SubmitRequest{
				Tier:           types.Tier(tier),
				TaskType:       types.TaskType(taskType),
				Classification: class,
				Routing:        types.RoutingDecision{Role: role, ResourceID: resource},
				Input:          strings.Join(args, " "),
			}
			url := addr + "/requests"
			if wait {
				url += "?wait=1"
			}
			payload, err := json.Marshal(req)
			if err != nil {
				return err
			}
			resp, err := (&http.Client{Timeout: 5 * time.Minute}).Post(url, "application/json", bytes.NewReader(payload))
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			return printBody(resp)
		},
	}
	submitCmd.Flags().StringVar(&tier, "tier", "normal", "User tier: vip|premium|normal")
	submitCmd.Flags().StringVar(&taskType, "task", "agent", "Task type: skill|agent")
	submitCmd.Flags().StringVar(&class, "class", "", "Classification for timeout selection")
	submitCmd.Flags().StringVar(&role, "role", "", "Route by profile role")
	submitCmd.Flags().StringVar(&resource, "resource", "", "Route by explicit resource id")
	submitCmd.Flags().BoolVar(&wait, "wait", true, "Wait inline for the result")

	resultCmd := &cobra.Command{
		Use:   "result <request-id>",
		Short: "Fetch the result of a submitted request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return getJSON(addr + "/requests/" + args[0] + "?timeout_ms=2000")
		},
	}

	cancelCmd := &cobra.Command{
		Use:   "cancel <request-id>",
		Short: "Cancel a queued request (advisory for in-flight)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := http.NewRequest(http.MethodDelete, addr+"/requests/"+args[0], nil)
			if err != nil {
				return err
			}
			resp, err := (&http.Client{Timeout: 10 * time.Second}).Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			return printBody(resp)
		},
	}

	root.AddCommand(statusCmd, submitCmd, resultCmd, cancelCmd)
	return root
}

func getJSON(url string) error {
	resp, err := (&http.Client{Timeout: 10 * time.Second}).Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return printBody(resp)
}

// printBody pretty-prints a JSON response, falling back to raw output.
func printBody(resp *http.Response) error {
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if json.Indent(&buf, b, "", "  ") == nil {
		b = buf.Bytes()
	}
	fmt.Println(strings.TrimSpace(string(b)))
	if resp.StatusCode >= 400 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}
