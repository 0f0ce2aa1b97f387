package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"gearrent/crypto"
)

var rpcEndpoint = defaultRPCEndpoint() // Defaults to localhost, can be overridden via RPC_URL or --rpc flag
var rpcAuthToken = os.Getenv("GEARRENT_RPC_TOKEN")

func main() {
	args := os.Args[1:]
	var err error
	rpcEndpoint = defaultRPCEndpoint()
	args, err = applyGlobalFlags(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if len(args) < 1 {
		printUsage()
		return
	}

	command := args[0]
	switch command {
	case "generate-key":
		generateKey()
	case "export-keystore":
		if len(args) < 3 {
			fmt.Println("Error: Please provide a key file and a destination path.")
			printUsage()
			return
		}
		exportKeystore(args[1], args[2])
	case "import-keystore":
		if len(args) < 3 {
			fmt.Println("Error: Please provide a keystore file and a destination key file.")
			printUsage()
			return
		}
		importKeystore(args[1], args[2])
	case "list":
		if len(args) < 5 {
			fmt.Println("Error: Please provide a key file, rate, deposit, and description.")
			printUsage()
			return
		}
		rate, err := strconv.ParseUint(args[2], 10, 64)
		if err != nil {
			fmt.Println("Error: Invalid rate.")
			return
		}
		deposit, err := strconv.ParseUint(args[3], 10, 64)
		if err != nil {
			fmt.Println("Error: Invalid deposit.")
			return
		}
		description := strings.Join(args[4:], " ")
		listItem(args[1], rate, deposit, description)
	case "rent":
		if len(args) < 4 {
			fmt.Println("Error: Please provide a key file, item id, and payment.")
			printUsage()
			return
		}
		id, err := strconv.ParseUint(args[2], 10, 64)
		if err != nil {
			fmt.Println("Error: Invalid item id.")
			return
		}
		payment, err := strconv.ParseUint(args[3], 10, 64)
		if err != nil {
			fmt.Println("Error: Invalid payment.")
			return
		}
		rentItem(args[1], id, payment)
	case "return":
		if len(args) < 3 {
			fmt.Println("Error: Please provide a key file and item id.")
			printUsage()
			return
		}
		id, err := strconv.ParseUint(args[2], 10, 64)
		if err != nil {
			fmt.Println("Error: Invalid item id.")
			return
		}
		returnItem(args[1], id)
	case "resolve":
		if len(args) < 4 {
			fmt.Println("Error: Please provide a key file, item id, and verdict (ok|damaged).")
			printUsage()
			return
		}
		id, err := strconv.ParseUint(args[2], 10, 64)
		if err != nil {
			fmt.Println("Error: Invalid item id.")
			return
		}
		var itemOK bool
		switch strings.ToLower(args[3]) {
		case "ok":
			itemOK = true
		case "damaged":
			itemOK = false
		default:
			fmt.Println("Error: Verdict must be 'ok' or 'damaged'.")
			return
		}
		resolveDeposit(args[1], id, itemOK)
	case "withdraw":
		if len(args) < 2 {
			fmt.Println("Error: Please provide a key file.")
			printUsage()
			return
		}
		withdraw(args[1])
	case "clear":
		if len(args) < 2 {
			fmt.Println("Error: Please provide the admin key file.")
			printUsage()
			return
		}
		clearItems(args[1])
	case "items":
		listItems()
	case "item":
		if len(args) < 2 {
			fmt.Println("Error: Please provide an item id.")
			printUsage()
			return
		}
		id, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			fmt.Println("Error: Invalid item id.")
			return
		}
		getItem(id)
	case "balance":
		if len(args) < 2 {
			fmt.Println("Error: Please provide an address.")
			printUsage()
			return
		}
		getBalance(args[1])
	case "events":
		var after uint64
		limit := 50
		if len(args) > 1 {
			after, err = strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				fmt.Println("Error: Invalid cursor.")
				return
			}
		}
		if len(args) > 2 {
			limit, err = strconv.Atoi(args[2])
			if err != nil || limit <= 0 {
				fmt.Println("Error: Invalid limit.")
				return
			}
		}
		getEvents(after, limit)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
	}
}

func defaultRPCEndpoint() string {
	if v := strings.TrimSpace(os.Getenv("RPC_URL")); v != "" {
		return v
	}
	return "http://localhost:8760"
}

func applyGlobalFlags(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--rpc" {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for --rpc")
			}
			rpcEndpoint = args[i+1]
			i++
			continue
		}
		out = append(out, arg)
	}
	return out, nil
}

func generateKey() {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		panic(err)
	}

	fileName := "wallet.key"
	if err := os.WriteFile(fileName, key.Bytes(), 0600); err != nil {
		panic(fmt.Sprintf("Failed to save key to %s: %v", fileName, err))
	}

	fmt.Printf("Generated new key and saved to %s\n", fileName)
	fmt.Printf("Your public address is: %s\n", key.PubKey().Address().String())
	fmt.Println("Store this file securely. Commands will refuse to run without a local key.")
}

func keystorePassphrase() (string, error) {
	pass := os.Getenv("GEARRENT_KEYSTORE_PASS")
	if strings.TrimSpace(pass) == "" {
		return "", fmt.Errorf("set GEARRENT_KEYSTORE_PASS to protect the keystore file")
	}
	return pass, nil
}

func exportKeystore(keyFile, destPath string) {
	pass, err := keystorePassphrase()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	keyBytes, err := os.ReadFile(keyFile)
	if err != nil {
		fmt.Printf("Error reading key file: %v\n", err)
		return
	}
	privKey, err := crypto.PrivateKeyFromBytes(keyBytes)
	if err != nil {
		fmt.Printf("Error parsing key: %v\n", err)
		return
	}
	if err := crypto.SaveToKeystore(destPath, privKey, pass); err != nil {
		fmt.Printf("Error writing keystore: %v\n", err)
		return
	}
	fmt.Printf("Encrypted key for %s written to %s\n", privKey.PubKey().Address(), destPath)
}

func importKeystore(keystorePath, destKeyFile string) {
	pass, err := keystorePassphrase()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	privKey, err := crypto.LoadFromKeystore(keystorePath, pass)
	if err != nil {
		fmt.Printf("Error decrypting keystore: %v\n", err)
		return
	}
	if err := os.WriteFile(destKeyFile, privKey.Bytes(), 0600); err != nil {
		fmt.Printf("Error writing key file: %v\n", err)
		return
	}
	fmt.Printf("Key for %s restored to %s\n", privKey.PubKey().Address(), destKeyFile)
}

func loadCallerAddress(keyFile string) (string, error) {
	keyBytes, err := os.ReadFile(keyFile)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("private key file %s not found. run ./gearrent-cli generate-key first", keyFile)
		}
		return "", fmt.Errorf("failed to read private key file %s: %w", keyFile, err)
	}
	if len(keyBytes) == 0 {
		return "", fmt.Errorf("private key file %s is empty. run ./gearrent-cli generate-key first", keyFile)
	}
	privKey, err := crypto.PrivateKeyFromBytes(keyBytes)
	if err != nil {
		return "", fmt.Errorf("failed to parse private key in %s: %w", keyFile, err)
	}
	return privKey.PubKey().Address().String(), nil
}

// --- COMMAND IMPLEMENTATIONS ---

type itemView struct {
	ID            uint64 `json:"id"`
	Owner         string `json:"owner"`
	Description   string `json:"description"`
	RatePerPeriod uint64 `json:"ratePerPeriod"`
	Deposit       uint64 `json:"deposit"`
	Status        string `json:"status"`
	Renter        string `json:"renter,omitempty"`
}

func printItem(item itemView) {
	fmt.Printf("Item #%d: %s\n", item.ID, item.Description)
	fmt.Printf("  Owner:   %s\n", item.Owner)
	fmt.Printf("  Rate:    %d per period\n", item.RatePerPeriod)
	fmt.Printf("  Deposit: %d\n", item.Deposit)
	fmt.Printf("  Status:  %s\n", item.Status)
	if item.Renter != "" {
		fmt.Printf("  Renter:  %s\n", item.Renter)
	}
}

func listItem(keyFile string, rate, deposit uint64, description string) {
	caller, err := loadCallerAddress(keyFile)
	if err != nil {
		fmt.Printf("Error loading private key: %v\n", err)
		return
	}
	result, err := callRentalRPC("rental_listItem", map[string]interface{}{
		"caller":      caller,
		"description": description,
		"rate":        rate,
		"deposit":     deposit,
	}, true)
	if err != nil {
		fmt.Printf("Error listing item: %v\n", err)
		return
	}
	var item itemView
	if err := json.Unmarshal(result, &item); err != nil {
		fmt.Printf("Error decoding item: %v\n", err)
		return
	}
	fmt.Printf("Listed item #%d. Renters must pay exactly %d (rate %d + deposit %d).\n",
		item.ID, item.RatePerPeriod+item.Deposit, item.RatePerPeriod, item.Deposit)
}

func rentItem(keyFile string, id, payment uint64) {
	caller, err := loadCallerAddress(keyFile)
	if err != nil {
		fmt.Printf("Error loading private key: %v\n", err)
		return
	}
	result, err := callRentalRPC("rental_rentItem", map[string]interface{}{
		"caller":  caller,
		"id":      id,
		"payment": payment,
	}, true)
	if err != nil {
		fmt.Printf("Error renting item: %v\n", err)
		return
	}
	var item itemView
	if err := json.Unmarshal(result, &item); err != nil {
		fmt.Printf("Error decoding item: %v\n", err)
		return
	}
	fmt.Printf("Rented item #%d. Your deposit of %d is held until the owner resolves the return.\n", item.ID, item.Deposit)
}

func returnItem(keyFile string, id uint64) {
	caller, err := loadCallerAddress(keyFile)
	if err != nil {
		fmt.Printf("Error loading private key: %v\n", err)
		return
	}
	if _, err := callRentalRPC("rental_returnItem", map[string]interface{}{
		"caller": caller,
		"id":     id,
	}, true); err != nil {
		fmt.Printf("Error returning item: %v\n", err)
		return
	}
	fmt.Printf("Returned item #%d. Awaiting the owner's deposit decision.\n", id)
}

func resolveDeposit(keyFile string, id uint64, itemOK bool) {
	caller, err := loadCallerAddress(keyFile)
	if err != nil {
		fmt.Printf("Error loading private key: %v\n", err)
		return
	}
	if _, err := callRentalRPC("rental_resolveDeposit", map[string]interface{}{
		"caller": caller,
		"id":     id,
		"itemOk": itemOK,
	}, true); err != nil {
		fmt.Printf("Error resolving deposit: %v\n", err)
		return
	}
	if itemOK {
		fmt.Printf("Deposit for item #%d refunded to the renter.\n", id)
	} else {
		fmt.Printf("Deposit for item #%d forfeited to you.\n", id)
	}
}

func withdraw(keyFile string) {
	caller, err := loadCallerAddress(keyFile)
	if err != nil {
		fmt.Printf("Error loading private key: %v\n", err)
		return
	}
	result, err := callRentalRPC("rental_withdraw", map[string]interface{}{
		"caller": caller,
	}, true)
	if err != nil {
		fmt.Printf("Error withdrawing: %v\n", err)
		return
	}
	var out struct {
		Amount uint64 `json:"amount"`
	}
	if err := json.Unmarshal(result, &out); err != nil {
		fmt.Printf("Error decoding result: %v\n", err)
		return
	}
	fmt.Printf("Withdrew %d. A payout instruction has been recorded.\n", out.Amount)
}

func clearItems(keyFile string) {
	caller, err := loadCallerAddress(keyFile)
	if err != nil {
		fmt.Printf("Error loading private key: %v\n", err)
		return
	}
	if _, err := callRentalRPC("rental_clearItems", map[string]interface{}{
		"caller": caller,
	}, true); err != nil {
		fmt.Printf("Error clearing items: %v\n", err)
		return
	}
	fmt.Println("All items cleared. Ledger balances were left untouched.")
}

func listItems() {
	result, err := callRentalRPC("rental_listItems", nil, false)
	if err != nil {
		fmt.Printf("Error fetching items: %v\n", err)
		return
	}
	var items []itemView
	if err := json.Unmarshal(result, &items); err != nil {
		fmt.Printf("Error decoding items: %v\n", err)
		return
	}
	if len(items) == 0 {
		fmt.Println("No items listed.")
		return
	}
	for _, item := range items {
		printItem(item)
	}
}

func getItem(id uint64) {
	result, err := callRentalRPC("rental_getItem", map[string]interface{}{"id": id}, false)
	if err != nil {
		fmt.Printf("Error fetching item: %v\n", err)
		return
	}
	var item itemView
	if err := json.Unmarshal(result, &item); err != nil {
		fmt.Printf("Error decoding item: %v\n", err)
		return
	}
	printItem(item)
}

func getBalance(addr string) {
	result, err := callRentalRPC("rental_balanceOf", map[string]interface{}{"address": addr}, false)
	if err != nil {
		fmt.Printf("Error fetching balance: %v\n", err)
		return
	}
	var out struct {
		Address string `json:"address"`
		Balance uint64 `json:"balance"`
	}
	if err := json.Unmarshal(result, &out); err != nil {
		fmt.Printf("Error decoding balance: %v\n", err)
		return
	}
	fmt.Printf("Balance for %s: %d\n", out.Address, out.Balance)
}

func getEvents(after uint64, limit int) {
	result, err := callRentalRPC("rental_getEvents", map[string]interface{}{
		"after": after,
		"limit": limit,
	}, false)
	if err != nil {
		fmt.Printf("Error fetching events: %v\n", err)
		return
	}
	var out struct {
		Events []struct {
			Sequence   uint64            `json:"sequence"`
			Timestamp  int64             `json:"timestamp"`
			Type       string            `json:"type"`
			Attributes map[string]string `json:"attributes"`
		} `json:"events"`
		Last uint64 `json:"lastSequence"`
	}
	if err := json.Unmarshal(result, &out); err != nil {
		fmt.Printf("Error decoding events: %v\n", err)
		return
	}
	if len(out.Events) == 0 {
		fmt.Println("No new events.")
		return
	}
	for _, evt := range out.Events {
		ts := time.Unix(evt.Timestamp, 0).UTC().Format(time.RFC3339)
		fmt.Printf("#%d %s %s", evt.Sequence, ts, evt.Type)
		if id, ok := evt.Attributes["id"]; ok {
			fmt.Printf(" item=%s", id)
		}
		if status, ok := evt.Attributes["status"]; ok {
			fmt.Printf(" status=%s", status)
		}
		fmt.Println()
	}
	fmt.Printf("Feed head is at sequence %d.\n", out.Last)
}

// --- RPC HELPER FUNCTIONS ---

func callRentalRPC(method string, param interface{}, requireAuth bool) (json.RawMessage, error) {
	payload := map[string]interface{}{"jsonrpc": "2.0", "id": 1, "method": method}
	if param != nil {
		payload["params"] = []interface{}{param}
	} else {
		payload["params"] = []interface{}{}
	}
	body, _ := json.Marshal(payload)
	resp, err := doRPCRequest(body, requireAuth)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("failed to decode response from node")
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("error from node: %s", rpcResp.Error.Message)
	}
	return rpcResp.Result, nil
}

func doRPCRequest(payload []byte, requireAuth bool) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodPost, rpcEndpoint, bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if requireAuth {
		if rpcAuthToken == "" {
			return nil, fmt.Errorf("privileged RPC call requires GEARRENT_RPC_TOKEN to be set")
		}
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(rpcAuthToken))
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", rpcEndpoint, err)
	}
	return resp, nil
}

func printUsage() {
	fmt.Println("Usage: gearrent-cli [--rpc <url>] <command> [args]")
	fmt.Println("Commands:")
	fmt.Println("  generate-key                                    Generate a new key and save it to wallet.key")
	fmt.Println("  export-keystore <key-file> <dest>               Encrypt a key into a v3 keystore file")
	fmt.Println("  import-keystore <keystore-file> <dest>          Decrypt a keystore file back to raw key bytes")
	fmt.Println("  list <key-file> <rate> <deposit> <description>  List a new item for rent")
	fmt.Println("  rent <key-file> <id> <payment>                  Rent an item (payment must equal rate+deposit)")
	fmt.Println("  return <key-file> <id>                          Return a rented item")
	fmt.Println("  resolve <key-file> <id> <ok|damaged>            Resolve the held deposit after a return")
	fmt.Println("  withdraw <key-file>                             Drain your ledger balance")
	fmt.Println("  clear <key-file>                                Remove all items (admin only)")
	fmt.Println("  items                                           List all items")
	fmt.Println("  item <id>                                       Show one item")
	fmt.Println("  balance <address>                               Show a withdrawable balance")
	fmt.Println("  events [after] [limit]                          Show engine events past a cursor")
	fmt.Println("Environment: RPC_URL overrides the endpoint, GEARRENT_RPC_TOKEN authorizes mutating commands.")
}
