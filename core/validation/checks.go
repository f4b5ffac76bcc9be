package validation

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"fluxrelay/core"
)

// AddressListCheck reports on the egress address file. A missing or empty
// file is a warning: the relay still serves, using the default route.
func AddressListCheck(path string) Check {
	return func(ctx context.Context) Step {
		if path == "" {
			return Step{Status: StepWarning, Message: "no address list configured, using the default route"}
		}

		info, err := os.Stat(path)
		switch {
		case os.IsNotExist(err):
			return Step{Status: StepWarning, Message: "file not found, using the default route", Error: err}
		case err != nil:
			return Step{Status: StepFailed, Message: "cannot read address list", Error: err}
		case info.IsDir():
			return Step{Status: StepFailed, Error: fmt.Errorf("%s is a directory", path)}
		}

		n, err := countAddresses(path)
		if err != nil {
			return Step{Status: StepFailed, Message: "cannot read address list", Error: err}
		}
		if n == 0 {
			return Step{Status: StepWarning, Message: "file is empty, using the default route"}
		}
		return Step{Status: StepPassed, Message: fmt.Sprintf("%d addresses in %s", n, path)}
	}
}

func countAddresses(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	n := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if strings.TrimSpace(sc.Text()) != "" {
			n++
		}
	}
	return n, sc.Err()
}

// ServiceCheck describes a remote service. With probe set it also sends a
// HEAD request to the base URL. Any HTTP answer counts as reachable, and
// an unreachable space is only a warning since spaces wake up on demand.
func ServiceCheck(svc core.ServiceConfig, probe bool, timeout time.Duration) Check {
	return func(ctx context.Context) Step {
		desc := fmt.Sprintf("%s fn_index=%d", svc.BaseURL, svc.FnIndex)
		if err := core.ValidateServiceURL(svc.BaseURL); err != nil {
			return Step{Status: StepFailed, Message: desc, Error: err}
		}
		if !probe {
			return Step{Status: StepPassed, Message: desc}
		}

		status, err := probeURL(ctx, svc.BaseURL, timeout)
		if err != nil {
			return Step{Status: StepWarning, Message: desc + " (unreachable)", Error: err}
		}
		return Step{Status: StepPassed, Message: fmt.Sprintf("%s (HTTP %d)", desc, status)}
	}
}

func probeURL(ctx context.Context, url string, timeout time.Duration) (int, error) {
	client, err := core.GetHTTPClient(core.DefaultRoute, timeout)
	if err != nil {
		return 0, err
	}
	defer client.CloseIdleConnections()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}
