package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/admin/v1/state"
	req, _ := http.NewRequest(http.MethodGet, u, nil)
	os.Exit(doAdmin(req))
}

// interactCmd enables or disables pickup of one tool on a running server.
func interactCmd(args []string) {
	fs := flag.NewFlagSet("interact", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	toolID := fs.String("tool", "", "tool id")
	on := fs.Bool("on", true, "true to enable pickup, false to disable")
	_ = fs.Parse(args)

	if strings.TrimSpace(*toolID) == "" {
		fmt.Fprintln(os.Stderr, "missing -tool")
		os.Exit(2)
	}
	q := url.Values{}
	q.Set("tool", *toolID)
	q.Set("on", strconv.FormatBool(*on))
	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/admin/v1/interact?" + q.Encode()
	req, _ := http.NewRequest(http.MethodPost, u, nil)
	os.Exit(doAdmin(req))
}

func doAdmin(req *http.Request) int {
	cl := &http.Client{Timeout: 5 * time.Second}
	resp, err := cl.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		return 1
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(strings.TrimSpace(string(b)))
	if resp.StatusCode/100 != 2 {
		return 1
	}
	return 0
}
