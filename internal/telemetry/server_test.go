package telemetry

import (
	"encoding/json"
	"io"
	"math"
	"net"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/fasthttp/websocket"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"

	"github.com/san-kum/posctl/internal/actuator"
)

func keyPath(key string) string {
	return "/api/telemetry/" + url.PathEscape(key)
}

func TestServerListAndGet(t *testing.T) {
	g := NewWithT(t)
	table := NewTable()
	table.SetNumber("Motor Position", 12.5)
	table.SetBool("Motor Inverted?", false)
	srv := NewServer(table, nil)

	resp, err := srv.App().Test(httptest.NewRequest("GET", "/api/telemetry", nil))
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(resp.StatusCode).To(Equal(200))
	var entries []Entry
	g.Expect(json.NewDecoder(resp.Body).Decode(&entries)).To(Succeed())
	g.Expect(entries).To(HaveLen(2))

	resp, err = srv.App().Test(httptest.NewRequest("GET", keyPath("Motor Position"), nil))
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(resp.StatusCode).To(Equal(200))
	var e Entry
	g.Expect(json.NewDecoder(resp.Body).Decode(&e)).To(Succeed())
	g.Expect(e.Number).To(Equal(12.5))

	resp, err = srv.App().Test(httptest.NewRequest("GET", keyPath("Motor Inverted?"), nil))
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(resp.StatusCode).To(Equal(200))

	resp, err = srv.App().Test(httptest.NewRequest("GET", keyPath("nope"), nil))
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(resp.StatusCode).To(Equal(404))
}

func TestServerListAfterNonFinitePublish(t *testing.T) {
	g := NewWithT(t)
	table := NewTable()
	table.SetNumber("Motor Rotation", 0.5)
	srv := NewServer(table, nil)

	v := table.Version()
	g.Expect(table.PublishNumber("Motor Position", math.NaN())).NotTo(Succeed())
	g.Expect(table.PublishNumber("Motor Position", math.NaN())).NotTo(Succeed())
	g.Expect(table.Version()).To(Equal(v))

	resp, err := srv.App().Test(httptest.NewRequest("GET", "/api/telemetry", nil))
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(resp.StatusCode).To(Equal(200))
	var entries []Entry
	g.Expect(json.NewDecoder(resp.Body).Decode(&entries)).To(Succeed())
	g.Expect(entries).To(HaveLen(1))
}

func TestServerPut(t *testing.T) {
	g := NewWithT(t)
	table := NewTable()
	srv := NewServer(table, nil)

	put := func(path, body string) int {
		req := httptest.NewRequest("PUT", path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		resp, err := srv.App().Test(req)
		g.Expect(err).NotTo(HaveOccurred())
		return resp.StatusCode
	}

	g.Expect(put(keyPath("Motor P Gain"), `{"value": 0.25}`)).To(Equal(200))
	v, ok := table.Number("Motor P Gain")
	g.Expect(ok).To(BeTrue())
	g.Expect(v).To(Equal(0.25))

	g.Expect(put(keyPath("Motor P Gain")+"?default=true", `{"value": 9}`)).To(Equal(200))
	v, _ = table.Number("Motor P Gain")
	g.Expect(v).To(Equal(0.25))

	g.Expect(put(keyPath("Motor Enabled?"), `{"value": true}`)).To(Equal(200))
	b, ok := table.Bool("Motor Enabled?")
	g.Expect(ok).To(BeTrue())
	g.Expect(b).To(BeTrue())

	g.Expect(put(keyPath("x"), `{"value": "fast"}`)).To(Equal(400))
	g.Expect(put(keyPath("x"), `not json`)).To(Equal(400))
	g.Expect(put(keyPath("x"), `{}`)).To(Equal(400))

	resp, err := srv.App().Test(httptest.NewRequest("DELETE", keyPath("Motor P Gain"), nil))
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(resp.StatusCode).To(Equal(204))
	_, ok = table.Number("Motor P Gain")
	g.Expect(ok).To(BeFalse())
}

func TestServerInput(t *testing.T) {
	g := NewWithT(t)
	srv := NewServer(NewTable(), nil)

	resp, err := srv.App().Test(httptest.NewRequest("POST", "/api/input/toggle", nil))
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(resp.StatusCode).To(Equal(503))

	var pressed []string
	srv.OnInput = func(button string) error {
		if button == "jump" {
			return errors.New("unknown button")
		}
		pressed = append(pressed, button)
		return nil
	}
	resp, err = srv.App().Test(httptest.NewRequest("POST", "/api/input/increase", nil))
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(resp.StatusCode).To(Equal(200))
	body, _ := io.ReadAll(resp.Body)
	g.Expect(string(body)).To(ContainSubstring("increase"))

	resp, err = srv.App().Test(httptest.NewRequest("POST", "/api/input/jump", nil))
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(resp.StatusCode).To(Equal(400))
	g.Expect(pressed).To(Equal([]string{"increase"}))
}

func TestServerRejectsPlainStreamRequest(t *testing.T) {
	srv := NewServer(NewTable(), nil)
	resp, err := srv.App().Test(httptest.NewRequest("GET", "/ws/telemetry", nil))
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	if resp.StatusCode != 426 {
		t.Errorf("status = %d, want 426", resp.StatusCode)
	}
}

func startServer(t *testing.T, srv *Server) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = srv.Shutdown() })
	return ln.Addr().String()
}

func TestClientRoundTrip(t *testing.T) {
	g := NewWithT(t)
	table := NewTable()
	addr := startServer(t, NewServer(table, nil))
	client := NewClient("http://"+addr+"/", time.Second)

	v, err := client.NumberOrDefault("Motor I Zone", 0.1)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(v).To(Equal(0.1))

	g.Expect(client.PublishNumber("Motor Position", 4.5)).To(Succeed())
	g.Expect(client.PublishBool("Motor Inverted?", true)).To(Succeed())
	g.Expect(client.SetDefaultNumber("Motor I Zone", 0.3)).To(Succeed())
	g.Expect(client.SetDefaultNumber("Motor I Zone", 7)).To(Succeed())

	pos, _ := table.Number("Motor Position")
	g.Expect(pos).To(Equal(4.5))
	inv, _ := table.Bool("Motor Inverted?")
	g.Expect(inv).To(BeTrue())

	v, err = client.NumberOrDefault("Motor I Zone", 0.1)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(v).To(Equal(0.3))

	v, err = client.NumberOrDefault("Motor Inverted?", 0.1)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(v).To(Equal(0.1))
}

func TestClientUnavailable(t *testing.T) {
	g := NewWithT(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	g.Expect(err).NotTo(HaveOccurred())
	addr := ln.Addr().String()
	g.Expect(ln.Close()).To(Succeed())

	client := NewClient("http://"+addr, 50*time.Millisecond)
	v, err := client.NumberOrDefault("Motor P Gain", 0.1)
	g.Expect(v).To(Equal(0.1))
	g.Expect(errors.Is(err, actuator.ErrTelemetryUnavailable)).To(BeTrue())

	err = client.PublishNumber("Motor Position", 1)
	g.Expect(errors.Is(err, actuator.ErrTelemetryUnavailable)).To(BeTrue())
}

func TestStreamPushesChanges(t *testing.T) {
	g := NewWithT(t)
	table := NewTable()
	table.SetNumber("Motor Position", 1)
	srv := NewServer(table, nil)
	srv.SetStreamInterval(10 * time.Millisecond)
	addr := startServer(t, srv)

	var conn *websocket.Conn
	g.Eventually(func() error {
		var err error
		conn, _, err = websocket.DefaultDialer.Dial("ws://"+addr+"/ws/telemetry", nil)
		return err
	}, time.Second, 20*time.Millisecond).Should(Succeed())
	defer conn.Close()

	var first []Entry
	g.Expect(conn.ReadJSON(&first)).To(Succeed())
	g.Expect(first).To(HaveLen(1))
	g.Expect(first[0].Number).To(Equal(1.0))

	table.SetNumber("Motor Position", 2)
	g.Expect(conn.SetReadDeadline(time.Now().Add(2 * time.Second))).To(Succeed())
	var second []Entry
	g.Expect(conn.ReadJSON(&second)).To(Succeed())
	g.Expect(second[0].Number).To(Equal(2.0))
}
