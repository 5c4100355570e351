package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"time"
)

// demo 数据播种器：经 HTTP 写入一个农户、一个买家、一条挂单、一条需求，
// 然后轮询撮合建议，观察事件链路是否打通。
func main() {
	baseURL := flag.String("base", "http://localhost:8080", "server base url")
	waitSec := flag.Int("wait", 20, "seconds to poll for suggestions")
	flag.Parse()

	client := &http.Client{Timeout: 5 * time.Second}

	farmerID, err := createUser(client, *baseURL, "Mang Tomas", "farmer")
	if err != nil {
		panic(fmt.Sprintf("create farmer: %v", err))
	}
	buyerID, err := createUser(client, *baseURL, "Aling Nena's Eatery", "buyer")
	if err != nil {
		panic(fmt.Sprintf("create buyer: %v", err))
	}
	fmt.Println("farmer:", farmerID, "buyer:", buyerID)

	listing := map[string]any{
		"farmer_id":      farmerID,
		"farmer_name":    "Mang Tomas",
		"produce_name":   "Tomatoes",
		"category":       "Vegetables",
		"quantity":       50,
		"quantity_unit":  "kg",
		"price_per_unit": 45,
		"currency":       "PHP",
		"description":    "Freshly harvested, slightly ripe",
		"location":       map[string]any{"city": "Tarlac City", "region": "Central Luzon"},
		"expiry_time":    time.Now().Add(5 * 24 * time.Hour).Format(time.RFC3339),
	}
	listingID, err := createDoc(client, *baseURL+"/api/listings", listing)
	if err != nil {
		panic(fmt.Sprintf("create listing: %v", err))
	}
	fmt.Println("listing:", listingID)

	request := map[string]any{
		"buyer_id":              buyerID,
		"buyer_name":            "Aling Nena's Eatery",
		"produce_needed_name":   "Tomatoes",
		"category":              "Vegetables",
		"desired_quantity":      30,
		"quantity_unit":         "kg",
		"delivery_location":     map[string]any{"city": "Quezon City", "region": "NCR"},
		"delivery_deadline":     time.Now().Add(3 * 24 * time.Hour).Format(time.RFC3339),
		"is_ai_match_preferred": true,
	}
	requestID, err := createDoc(client, *baseURL+"/api/requests", request)
	if err != nil {
		panic(fmt.Sprintf("create request: %v", err))
	}
	fmt.Println("request:", requestID)

	// 轮询撮合结果（撮合是异步的，经 outbox -> kafka -> consumer）
	deadline := time.Now().Add(time.Duration(*waitSec) * time.Second)
	for time.Now().Before(deadline) {
		n, err := countSuggestions(client, *baseURL, buyerID)
		if err != nil {
			fmt.Println("poll suggestions err:", err)
		} else if n > 0 {
			fmt.Printf("got %d match suggestions for buyer %s\n", n, buyerID)
			return
		}
		time.Sleep(2 * time.Second)
	}
	fmt.Println("no suggestions yet; check relay/consumer/oracle logs")
}

func createUser(client *http.Client, baseURL, name, role string) (string, error) {
	return createDoc(client, baseURL+"/api/users", map[string]any{
		"display_name": name,
		"role":         role,
	})
}

// createDoc POST 一个文档并取回 data.id。
func createDoc(client *http.Client, url string, payload map[string]any) (string, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	resp, err := client.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}
	var out struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", err
	}
	if out.Data.ID == "" {
		return "", fmt.Errorf("no id in response: %s", body)
	}
	return out.Data.ID, nil
}

func countSuggestions(client *http.Client, baseURL, buyerID string) (int, error) {
	resp, err := client.Get(baseURL + "/api/suggestions?buyer_id=" + buyerID)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}
	var out struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return 0, err
	}
	return len(out.Data), nil
}
