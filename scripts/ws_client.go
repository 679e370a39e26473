// Package main runs a demo WebSocket client for plan events: it simulates a
// small dataset, subscribes to its event stream, then triggers an optimize.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// Create a small dataset
	body := []byte(`{"num_skus":50,"seed":7}`)
	req, _ := http.NewRequest(http.MethodPost, base+"/v1/simulate", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", "t_demo")
	req.Header.Set("X-Role", "admin")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	var simResp struct {
		DatasetID string `json:"dataset_id"`
		Count     int    `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&simResp); err != nil {
		log.Fatal(err)
	}
	log.Printf("Dataset %s (%d SKUs)", simResp.DatasetID, simResp.Count)

	// Subscribe to the dataset's event stream
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/datasets/" + simResp.DatasetID + "/events/ws"}
	hdr := http.Header{}
	hdr.Set("X-Tenant-Id", "t_demo")
	hdr.Set("X-Role", "admin")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = c.Close() }()

	events := make(chan string, 4)
	go func() {
		for {
			var evt struct {
				Type string         `json:"type"`
				Data map[string]any `json:"data"`
			}
			if err := c.ReadJSON(&evt); err != nil {
				return
			}
			data, _ := json.Marshal(evt.Data)
			events <- fmt.Sprintf("%s %s", evt.Type, data)
		}
	}()

	// Trigger an optimize run against the dataset
	optBody := []byte(fmt.Sprintf(`{"dataset_id":%q,"params":{"population":10,"generations":5,"seed":42}}`, simResp.DatasetID))
	req, _ = http.NewRequest(http.MethodPost, base+"/v1/optimize", bytes.NewReader(optBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", "t_demo")
	req.Header.Set("X-Role", "admin")
	optResp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	_ = optResp.Body.Close()

	select {
	case msg := <-events:
		log.Printf("event: %s", msg)
	case <-time.After(10 * time.Second):
		log.Fatal("no plan event received")
	}
}
