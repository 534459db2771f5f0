//go:build e2e

package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/chromedp"
)

const (
	chromeImage           = "chromedp/headless-shell:stable"
	chromeContainerPrefix = "chrome-e2e-awardwizard-"
)

// setupDockerChrome starts a headless Chrome container and returns a
// chromedp context bound to it. The test is skipped without Docker.
func setupDockerChrome(t *testing.T, timeout time.Duration) context.Context {
	t.Helper()

	if _, err := exec.Command("docker", "version").CombinedOutput(); err != nil {
		t.Skip("Docker not available, skipping E2E test")
	}

	port, err := freePort()
	if err != nil {
		t.Fatalf("Failed to allocate Chrome port: %v", err)
	}
	name := fmt.Sprintf("%s%d", chromeContainerPrefix, port)
	_ = exec.Command("docker", "rm", "-f", name).Run()

	// Linux shares the host network so Chrome can reach the test server on
	// localhost. Elsewhere the container's 9222 is mapped instead.
	args := []string{"run", "-d", "--rm", "--memory", "512m", "--name", name}
	if runtime.GOOS == "linux" {
		args = append(args, "--network", "host", chromeImage, fmt.Sprintf("--remote-debugging-port=%d", port))
	} else {
		args = append(args, "-p", fmt.Sprintf("%d:9222", port), chromeImage)
	}
	if out, err := exec.Command("docker", args...).CombinedOutput(); err != nil {
		t.Fatalf("Failed to start Chrome container: %v\n%s", err, out)
	}
	t.Cleanup(func() { _ = exec.Command("docker", "rm", "-f", name).Run() })

	versionURL := fmt.Sprintf("http://localhost:%d/json/version", port)
	client := &http.Client{Timeout: 2 * time.Second}
	ready := false
	for i := 0; i < 120; i++ {
		if resp, err := client.Get(versionURL); err == nil {
			resp.Body.Close()
			ready = true
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
	if !ready {
		t.Fatal("Chrome failed to start within 60 seconds")
	}

	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), fmt.Sprintf("http://localhost:%d", port))
	ctx, ctxCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(t.Logf))
	ctx, timeoutCancel := context.WithTimeout(ctx, timeout)
	t.Cleanup(func() {
		timeoutCancel()
		ctxCancel()
		allocCancel()
	})
	return ctx
}

func freePort() (int, error) {
	l, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// chromeURL rewrites an httptest URL so the browser in the container can
// reach it.
func chromeURL(u string) string {
	host := "localhost"
	if runtime.GOOS != "linux" {
		host = "host.docker.internal"
	}
	u = strings.Replace(u, "127.0.0.1", host, 1)
	return strings.Replace(u, "[::1]", host, 1)
}
