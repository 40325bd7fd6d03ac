package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/fatih/color"
)

const baseURL = "http://localhost:3000/api"

// Token for a seeded test user. Override with SIM_TOKEN.
var userToken = os.Getenv("SIM_TOKEN")

// Pretty print JSON helper
func prettyPrint(v interface{}) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Printf("%v\n", v)
		return
	}
	fmt.Println(string(b))
}

// Request helper
func sendRequest(method, url string, body interface{}) (*http.Response, []byte, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		bodyReader = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequest(method, baseURL+url, bodyReader)
	if err != nil {
		return nil, nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	if userToken != "" {
		req.Header.Set("Authorization", "Bearer "+userToken)
	}

	client := &http.Client{} // Drafting runs are slow, no timeout
	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	return resp, respBody, err
}

func dataField(body []byte) map[string]interface{} {
	var envelope struct {
		Data map[string]interface{} `json:"data"`
	}
	json.Unmarshal(body, &envelope)
	return envelope.Data
}

func main() {
	color.Cyan("🚀 Starting Motion Drafting Simulation\n")

	// 1. Upload a reference document
	color.Yellow("\n1. Upload reference document")
	docReq := map[string]interface{}{
		"name":    "services-agreement.txt",
		"type":    "contract",
		"content": "MASTER SERVICES AGREEMENT between Apex Logistics LLC and Hartwell Freight Inc. Section 12.4: all disputes shall be resolved by binding arbitration in King County, Washington.",
	}
	resp, body, err := sendRequest("POST", "/document/v1", docReq)
	if err != nil {
		color.Red("Failed: %v", err)
		os.Exit(1)
	}
	color.Green("Status: %s", resp.Status)
	prettyPrint(dataField(body))

	// 2. Create a drafting session in parallel mode
	color.Yellow("\n2. Create draft session (PARALLEL)")
	resp, body, err = sendRequest("POST", "/draft/v1/session", map[string]interface{}{"mode": "PARALLEL"})
	if err != nil {
		color.Red("Failed: %v", err)
		os.Exit(1)
	}
	color.Green("Status: %s", resp.Status)
	session := dataField(body)
	prettyPrint(session)
	sessionID, _ := session["id"].(string)
	if sessionID == "" {
		color.Red("No session id returned")
		os.Exit(1)
	}

	// 3. Intake dialogue until the machine stops asking questions
	turns := []string{
		"I need a motion to compel arbitration. Case: Apex Logistics LLC v. Hartwell Freight Inc., King County Superior Court, case 24-2-01881-5. I represent the defendant.",
		"The contract is the attached services agreement, section 12.4 is the arbitration clause. Plaintiff filed suit despite it.",
		"Relief: stay the case and compel arbitration under the agreement. Hearing is set for October 12.",
	}
	for i, turn := range turns {
		color.Yellow("\n3.%d Submit intake turn", i+1)
		resp, body, err = sendRequest("POST", "/draft/v1/submit", map[string]interface{}{
			"draft_session_id": sessionID,
			"message":          turn,
			"upload_names":     []string{"services-agreement.txt"},
			"task_type":        "motion",
		})
		if err != nil {
			color.Red("Failed: %v", err)
			os.Exit(1)
		}
		color.Green("Status: %s", resp.Status)
		data := dataField(body)
		prettyPrint(data)

		if stage, _ := data["stage"].(string); stage == "CREATING" {
			color.Cyan("Generation started, stopping intake turns")
			break
		}
	}

	// 4. Poll the snapshot until the run finishes
	color.Yellow("\n4. Waiting for generation to finish")
	for i := 0; i < 120; i++ {
		time.Sleep(2 * time.Second)
		_, body, err = sendRequest("GET", "/draft/v1/session/"+sessionID, nil)
		if err != nil {
			color.Red("Failed: %v", err)
			os.Exit(1)
		}
		data := dataField(body)
		stage, _ := data["stage"].(string)
		fmt.Printf("  stage=%s\n", stage)
		if stage == "DONE" {
			color.Green("Run complete")
			prettyPrint(data["run"])
			break
		}
		if stage == "COLLECTING" || stage == "IDLE" {
			color.Red("Run failed or was cancelled")
			prettyPrint(data)
			os.Exit(1)
		}
	}

	// 5. Pick one of the parallel results
	color.Yellow("\n5. Select result from provider-a")
	resp, body, err = sendRequest("POST", "/draft/v1/select", map[string]interface{}{
		"draft_session_id": sessionID,
		"provider":         "provider-a",
	})
	if err != nil {
		color.Red("Failed: %v", err)
		os.Exit(1)
	}
	color.Green("Status: %s", resp.Status)
	prettyPrint(dataField(body))

	color.Cyan("\n✅ Simulation finished")
}
