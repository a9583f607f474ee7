package main

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var riskCmd = &cobra.Command{
	Use:   "risk",
	Short: "Query the running engine's portfolio risk",
	RunE: func(_ *cobra.Command, _ []string) error {
		return opsGet("/api/risk")
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Trigger an emergency stop on the running engine",
	RunE: func(_ *cobra.Command, _ []string) error {
		return opsPost("/api/emergency-stop")
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset-daily",
	Short: "Reset the engine's daily loss counter",
	RunE: func(_ *cobra.Command, _ []string) error {
		return opsPost("/api/reset-daily")
	},
}

var opsClient = &http.Client{Timeout: 10 * time.Second}

func opsGet(path string) error {
	resp, err := opsClient.Get(opsAddr + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return printResponse(resp)
}

func opsPost(path string) error {
	resp, err := opsClient.Post(opsAddr+path, "application/json", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return printResponse(resp)
}

func printResponse(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("ops API %s: %s", resp.Status, body)
	}
	if len(body) > 0 {
		fmt.Println(string(body))
	}
	return nil
}
