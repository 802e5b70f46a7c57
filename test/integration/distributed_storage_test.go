package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"testing"
	"time"
)

// cluster builds the router and shard binaries once per test run and
// launches a router with five initial shards, mirroring scenario S1's
// starting state. spawner selects the router's --spawner flag, so the same
// harness drives both the in-process and the external (separate cmd/shard
// process per shard) backends.
type cluster struct {
	t          *testing.T
	spawner    string
	addr       string
	router     *exec.Cmd
	routerAddr string
	snapDir    string
	httpClient *http.Client
}

func newCluster(t *testing.T, spawner, addr string) *cluster {
	t.Helper()

	if _, err := os.Stat("./bin/router"); os.IsNotExist(err) {
		t.Log("building router binary...")
		if err := exec.Command("go", "build", "-o", "bin/router", "./cmd/router").Run(); err != nil {
			t.Skipf("skipping integration test: failed to build router: %v", err)
		}
	}
	if spawner == "external" {
		if _, err := os.Stat("./bin/shard"); os.IsNotExist(err) {
			t.Log("building shard binary...")
			if err := exec.Command("go", "build", "-o", "bin/shard", "./cmd/shard").Run(); err != nil {
				t.Skipf("skipping integration test: failed to build shard: %v", err)
			}
		}
	}

	return &cluster{
		t:          t,
		spawner:    spawner,
		addr:       addr,
		routerAddr: "http://" + addr,
		snapDir:    t.TempDir(),
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *cluster) start() error {
	args := []string{
		"--listen", c.addr,
		"--shards", "5001,5002,5003,5004,5005",
		"--snapshot-dir", c.snapDir,
		"--flush-interval", "1h",
		"--spawner", c.spawner,
	}
	if c.spawner == "external" {
		args = append(args, "--shard-binary", "./bin/shard")
	}
	c.router = exec.Command("./bin/router", args...)
	c.router.Stdout = os.Stdout
	c.router.Stderr = os.Stderr
	if err := c.router.Start(); err != nil {
		return fmt.Errorf("start router: %w", err)
	}
	return c.waitReady(c.routerAddr + "/put?key=__readiness&value=1")
}

func (c *cluster) waitReady(url string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for router: %w", ctx.Err())
		default:
			req, _ := http.NewRequest(http.MethodPut, url, nil)
			resp, err := c.httpClient.Do(req)
			if err == nil {
				resp.Body.Close()
				if resp.StatusCode == http.StatusOK {
					return nil
				}
			}
			time.Sleep(100 * time.Millisecond)
		}
	}
}

func (c *cluster) stop() {
	if c.router != nil && c.router.Process != nil {
		c.router.Process.Kill()
		c.router.Wait()
	}
}

func (c *cluster) put(key, value string) (int, error) {
	url := fmt.Sprintf("%s/put?key=%s&value=%s", c.routerAddr, key, value)
	req, _ := http.NewRequest(http.MethodPut, url, nil)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

func (c *cluster) get(key string) (int, string, error) {
	url := fmt.Sprintf("%s/get?key=%s", c.routerAddr, key)
	resp, err := c.httpClient.Get(url)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	var body struct {
		Value string `json:"value"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return resp.StatusCode, "", err
	}
	return resp.StatusCode, body.Value, nil
}

func (c *cluster) del(key string) (int, error) {
	url := fmt.Sprintf("%s/del?key=%s", c.routerAddr, key)
	req, _ := http.NewRequest("DEL", url, nil)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

func (c *cluster) addServer() (int, error) {
	resp, err := c.httpClient.Post(c.routerAddr+"/add_server", "application/json", nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

func (c *cluster) removeServer(port string) (int, error) {
	url := fmt.Sprintf("%s/remove_server?port=%s", c.routerAddr, port)
	req, _ := http.NewRequest(http.MethodPost, url, nil)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

// TestClusterScenarios runs the end-to-end scenarios against a router using
// the default in-process spawner, where each shard is a goroutine inside
// the router's own process.
func TestClusterScenarios(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	c := newCluster(t, "inprocess", "127.0.0.1:18080")
	if err := c.start(); err != nil {
		t.Fatalf("failed to start cluster: %v", err)
	}
	defer c.stop()

	runClusterScenarios(t, c)
}

// TestClusterScenariosExternalSpawner runs the same scenarios against a
// router started with --spawner=external, so each shard is its own cmd/shard
// OS process rather than a goroutine — exercising ExternalSpawner, which
// nothing else in the tree calls.
func TestClusterScenariosExternalSpawner(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	c := newCluster(t, "external", "127.0.0.1:18090")
	if err := c.start(); err != nil {
		t.Fatalf("failed to start cluster: %v", err)
	}
	defer c.stop()

	runClusterScenarios(t, c)
}

func runClusterScenarios(t *testing.T, c *cluster) {
	t.Run("S1_PutGetDeleteGet", func(t *testing.T) {
		status, err := c.put("foo", "bar")
		if err != nil || status != http.StatusOK {
			t.Fatalf("put foo: status=%d err=%v", status, err)
		}

		status, value, err := c.get("foo")
		if err != nil || status != http.StatusOK || value != "bar" {
			t.Fatalf("get foo: status=%d value=%q err=%v", status, value, err)
		}

		status, err = c.del("foo")
		if err != nil || status != http.StatusOK {
			t.Fatalf("del foo: status=%d err=%v", status, err)
		}

		status, _, err = c.get("foo")
		if err != nil || status != http.StatusNotFound {
			t.Fatalf("get foo after delete: expected 404, got status=%d err=%v", status, err)
		}
	})

	t.Run("S2_GetNeverWritten", func(t *testing.T) {
		status, _, err := c.get("never-written")
		if err != nil || status != http.StatusNotFound {
			t.Fatalf("expected 404 for unwritten key, got status=%d err=%v", status, err)
		}
	})

	t.Run("S4_AddServerGrowsRing", func(t *testing.T) {
		status, err := c.addServer()
		if err != nil || status != http.StatusOK {
			t.Fatalf("add_server: status=%d err=%v", status, err)
		}
	})

	t.Run("S5_RemoveServerMigratesData", func(t *testing.T) {
		if status, err := c.put("migrated-a", "1"); err != nil || status != http.StatusOK {
			t.Fatalf("put migrated-a: status=%d err=%v", status, err)
		}
		if status, err := c.put("migrated-b", "2"); err != nil || status != http.StatusOK {
			t.Fatalf("put migrated-b: status=%d err=%v", status, err)
		}

		status, err := c.removeServer("5001")
		if err != nil || status != http.StatusOK {
			t.Fatalf("remove_server: status=%d err=%v", status, err)
		}

		for _, key := range []string{"migrated-a", "migrated-b"} {
			status, _, err := c.get(key)
			if err != nil || status != http.StatusOK {
				t.Errorf("get %s after remove_server: status=%d err=%v", key, status, err)
			}
		}
	})
}
