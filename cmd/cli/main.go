package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "auth":
		handleAuth(args)
	case "vehicle":
		handleVehicle(args)
	case "reservation":
		handleReservation(args)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func handleAuth(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: fleetrent auth <register|login|logout|who>")
		return
	}

	switch args[0] {
	case "register":
		registerUser(args[1:])
	case "login":
		loginUser(args[1:])
	case "logout":
		logoutUser()
	case "who":
		whoAmI()
	default:
		fmt.Printf("unknown auth command: %s\n", args[0])
	}
}

func handleVehicle(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: fleetrent vehicle <list|available|state|delete|stats>")
		return
	}

	switch args[0] {
	case "list":
		listVehicles()
	case "available":
		availableVehicles(args[1:])
	case "state":
		setVehicleState(args[1:])
	case "delete":
		deleteVehicle(args[1:])
	case "stats":
		fleetStats()
	default:
		fmt.Printf("unknown vehicle command: %s\n", args[0])
	}
}

func handleReservation(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: fleetrent reservation <list|book|confirm|cancel|delete>")
		return
	}

	switch args[0] {
	case "list":
		listReservations()
	case "book":
		bookReservation(args[1:])
	case "confirm":
		confirmReservation(args[1:])
	case "cancel":
		cancelReservation(args[1:])
	case "delete":
		deleteReservation(args[1:])
	default:
		fmt.Printf("unknown reservation command: %s\n", args[0])
	}
}

func registerUser(args []string) {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	firstName := fs.String("first", "", "first name")
	lastName := fs.String("last", "", "last name")
	email := fs.String("email", "", "email")
	password := fs.String("password", "", "password")
	fs.Parse(args)

	if *email == "" || *password == "" || *firstName == "" || *lastName == "" {
		fmt.Println("Error: first, last, email, and password are required")
		fs.PrintDefaults()
		return
	}

	result, status, err := post("/auth/register", map[string]string{
		"first_name": *firstName,
		"last_name":  *lastName,
		"email":      *email,
		"password":   *password,
	})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status == http.StatusCreated {
		fmt.Printf("✓ Registered: %s\n", *email)
		saveTokenFrom(result)
	} else {
		fmt.Printf("✗ Registration failed: %v\n", result["error"])
	}
}

func loginUser(args []string) {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "email")
	password := fs.String("password", "", "password")
	fs.Parse(args)

	if *email == "" || *password == "" {
		fmt.Println("Error: email and password are required")
		fs.PrintDefaults()
		return
	}

	result, status, err := post("/auth/login", map[string]string{"email": *email, "password": *password})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status == http.StatusOK {
		saveTokenFrom(result)
		fmt.Printf("✓ Logged in as: %s\n", *email)
	} else {
		fmt.Printf("✗ Login failed: %v\n", result["error"])
	}
}

func logoutUser() {
	os.Remove(tokenFile())
	fmt.Println("✓ Logged out")
}

func whoAmI() {
	token := loadToken()
	if token == "" {
		fmt.Println("Not logged in")
		return
	}
	fmt.Printf("✓ Logged in (token: %s...)\n", token[:20])
}

func listVehicles() {
	items, ok := getList("/vehicles")
	if !ok {
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PLATE\tMODEL\tBRAND\tSTATE\tPRICE/DAY")
	for _, v := range items {
		fmt.Fprintf(w, "%v\t%v\t%v\t%v\t%v\n", v["plate"], v["model_name"], v["brand_name"], v["state"], v["daily_price"])
	}
	w.Flush()
}

func availableVehicles(args []string) {
	fs := flag.NewFlagSet("available", flag.ExitOnError)
	start := fs.String("start", "", "start date (YYYY-MM-DD)")
	end := fs.String("end", "", "end date (YYYY-MM-DD)")
	fs.Parse(args)

	if *start == "" || *end == "" {
		fmt.Println("Error: start and end are required")
		fs.PrintDefaults()
		return
	}

	items, ok := getList(fmt.Sprintf("/vehicles/available?start=%s&end=%s", *start, *end))
	if !ok {
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PLATE\tMODEL\tPRICE/DAY")
	for _, v := range items {
		fmt.Fprintf(w, "%v\t%v\t%v\n", v["plate"], v["model_name"], v["daily_price"])
	}
	w.Flush()
}

func setVehicleState(args []string) {
	if len(args) < 2 {
		fmt.Println("Usage: fleetrent vehicle state <plate> <available|rented|maintenance|out_of_service>")
		return
	}
	result, status, err := request("PUT", "/vehicles/"+args[0]+"/state", map[string]string{"state": args[1]})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status == http.StatusOK {
		fmt.Printf("✓ %s -> %s\n", args[0], args[1])
	} else {
		fmt.Printf("✗ %v\n", result["error"])
	}
}

func deleteVehicle(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: fleetrent vehicle delete <plate>")
		return
	}
	result, status, err := request("DELETE", "/vehicles/"+args[0], nil)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status == http.StatusOK {
		fmt.Printf("✓ Vehicle %s deleted\n", args[0])
	} else {
		fmt.Printf("✗ %v\n", result["error"])
	}
}

func fleetStats() {
	result, status, err := request("GET", "/vehicles/stats", nil)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status != http.StatusOK {
		fmt.Printf("✗ %v\n", result["error"])
		return
	}
	data, _ := result["data"].(map[string]interface{})
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TOTAL\tAVAILABLE\tRENTED\tMAINTENANCE\tOUT OF SERVICE")
	fmt.Fprintf(w, "%v\t%v\t%v\t%v\t%v\n",
		data["total"], data["available"], data["rented"], data["maintenance"], data["out_of_service"])
	w.Flush()
}

func listReservations() {
	items, ok := getList("/reservations")
	if !ok {
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPLATE\tUSER\tSTART\tEND\tSTATUS")
	for _, r := range items {
		period, _ := r["period"].(map[string]interface{})
		fmt.Fprintf(w, "%v\t%v\t%v\t%v\t%v\t%v\n",
			r["id"], r["plate"], r["user_name"], period["start"], period["end"], r["status"])
	}
	w.Flush()
}

func bookReservation(args []string) {
	fs := flag.NewFlagSet("book", flag.ExitOnError)
	plate := fs.String("plate", "", "vehicle plate")
	branch := fs.Int64("branch", 0, "pickup branch id")
	start := fs.String("start", "", "start date (YYYY-MM-DD)")
	end := fs.String("end", "", "end date (YYYY-MM-DD)")
	notes := fs.String("notes", "", "notes")
	fs.Parse(args)

	if *plate == "" || *start == "" || *end == "" || *branch == 0 {
		fmt.Println("Error: plate, branch, start, and end are required")
		fs.PrintDefaults()
		return
	}

	result, status, err := post("/reservations", map[string]interface{}{
		"plate":     *plate,
		"branch_id": *branch,
		"start":     *start,
		"end":       *end,
		"notes":     *notes,
	})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status == http.StatusCreated {
		data, _ := result["data"].(map[string]interface{})
		fmt.Printf("✓ Reservation %v created (%s, %s to %s)\n", data["id"], *plate, *start, *end)
	} else {
		fmt.Printf("✗ Booking failed: %v\n", result["error"])
	}
}

func confirmReservation(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: fleetrent reservation confirm <id>")
		return
	}
	result, status, err := request("PUT", "/reservations/"+args[0], map[string]string{"status": "confirmed"})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status == http.StatusOK {
		fmt.Printf("✓ Reservation %s confirmed\n", args[0])
	} else {
		fmt.Printf("✗ %v\n", result["error"])
	}
}

func cancelReservation(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: fleetrent reservation cancel <id>")
		return
	}
	result, status, err := request("POST", "/reservations/"+args[0]+"/cancel", nil)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status == http.StatusOK {
		fmt.Printf("✓ Reservation %s cancelled\n", args[0])
	} else {
		fmt.Printf("✗ %v\n", result["error"])
	}
}

func deleteReservation(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: fleetrent reservation delete <id>")
		return
	}
	result, status, err := request("DELETE", "/reservations/"+args[0], nil)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status == http.StatusOK {
		fmt.Printf("✓ Reservation %s deleted\n", args[0])
	} else {
		fmt.Printf("✗ %v\n", result["error"])
	}
}

// Helper functions

func request(method, path string, payload interface{}) (map[string]interface{}, int, error) {
	var body *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, err
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, getAPIURL()+path, body)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	addAuthHeader(req)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	var result map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&result)
	return result, resp.StatusCode, nil
}

func post(path string, payload interface{}) (map[string]interface{}, int, error) {
	return request("POST", path, payload)
}

func getList(path string) ([]map[string]interface{}, bool) {
	result, status, err := request("GET", path, nil)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return nil, false
	}
	if status != http.StatusOK {
		fmt.Printf("✗ %v\n", result["error"])
		return nil, false
	}
	raw, _ := result["data"].([]interface{})
	items := make([]map[string]interface{}, 0, len(raw))
	for _, item := range raw {
		if m, ok := item.(map[string]interface{}); ok {
			items = append(items, m)
		}
	}
	return items, true
}

func saveTokenFrom(result map[string]interface{}) {
	data, _ := result["data"].(map[string]interface{})
	if token, ok := data["token"].(string); ok {
		saveToken(token)
	}
}

func getAPIURL() string {
	if url := os.Getenv("FLEETRENT_API"); url != "" {
		return url
	}
	return "http://localhost:8080/api"
}

func tokenFile() string {
	home, _ := os.UserHomeDir()
	return home + "/.fleetrent/token"
}

func saveToken(token string) error {
	home, _ := os.UserHomeDir()
	os.MkdirAll(home+"/.fleetrent", 0700)
	return os.WriteFile(tokenFile(), []byte(token), 0600)
}

func loadToken() string {
	data, _ := os.ReadFile(tokenFile())
	return string(data)
}

func addAuthHeader(req *http.Request) {
	token := loadToken()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func printUsage() {
	fmt.Print(`FleetRent CLI

Usage:
  fleetrent <command> [options]

Commands:
  auth         User authentication (register, login, logout, who)
  vehicle      Fleet operations (list, available, state, delete, stats)
  reservation  Booking operations (list, book, confirm, cancel, delete)
  help         Show this help message

Environment Variables:
  FLEETRENT_API    API endpoint (default: http://localhost:8080/api)

Examples:
  fleetrent auth login -email staff@example.com -password pass
  fleetrent vehicle available -start 2026-03-10 -end 2026-03-15
  fleetrent reservation book -plate AA-11-BB -branch 1 -start 2026-03-10 -end 2026-03-15
  fleetrent reservation cancel 42
`)
}
