package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"loanchain/crypto"
)

var rpcEndpoint = defaultRPCEndpoint()
var rpcAuthToken = os.Getenv("LOANCHAIN_RPC_TOKEN")

const defaultKeyFile = "wallet.key"

func main() {
	args, err := applyGlobalFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if len(args) < 1 {
		printUsage()
		return
	}

	switch args[0] {
	case "generate-key":
		generateKey()
	case "get":
		requireArgs(args, 2, "get <loan-id>")
		printResult("loan_get", map[string]any{"loanId": parseID(args[1])})
	case "participants":
		requireArgs(args, 2, "participants <loan-id>")
		printResult("loan_participants", map[string]any{"loanId": parseID(args[1])})
	case "collateral":
		requireArgs(args, 2, "collateral <loan-id>")
		printResult("loan_collateral", map[string]any{"loanId": parseID(args[1])})
	case "events":
		limit := 50
		if len(args) > 1 {
			limit = int(parseID(args[1]))
		}
		printResult("loan_events", map[string]any{"limit": limit})
	case "balance":
		requireArgs(args, 3, "balance <symbol> <address>")
		printResult("token_balanceOf", map[string]any{"symbol": args[1], "address": args[2]})
	case "propose":
		requireArgs(args, 6, "propose <borrower> <token> <principal> <rate-bps> <maturity-unix> [min-commitment]")
		params := map[string]any{
			"borrower":  args[1],
			"token":     args[2],
			"principal": args[3],
			"rateBps":   parseID(args[4]),
			"maturity":  int64(parseID(args[5])),
		}
		if len(args) > 6 {
			params["minCommitment"] = args[6]
		}
		printResult("loan_propose", params)
	case "join":
		requireArgs(args, 4, "join <loan-id> <lender> <commitment>")
		printResult("loan_join", map[string]any{"loanId": parseID(args[1]), "lender": args[2], "commitment": args[3]})
	case "close-book":
		requireArgs(args, 3, "close-book <loan-id> <caller>")
		printResult("loan_closeSyndication", map[string]any{"loanId": parseID(args[1]), "caller": args[2]})
	case "contribute":
		requireArgs(args, 5, "contribute <loan-id> <lender> <token> <amount>")
		printResult("loan_contribute", map[string]any{"loanId": parseID(args[1]), "lender": args[2], "token": args[3], "amount": args[4]})
	case "approve":
		requireArgs(args, 5, "approve <symbol> <owner> <spender> <amount>")
		printResult("token_approve", map[string]any{"symbol": args[1], "owner": args[2], "spender": args[3], "amount": args[4]})
	case "lock-collateral":
		requireArgs(args, 5, "lock-collateral <loan-id> <borrower> <token> <amount>")
		printResult("loan_lockCollateralFungible", map[string]any{"loanId": parseID(args[1]), "borrower": args[2], "token": args[3], "amount": args[4]})
	case "lock-unique":
		requireArgs(args, 5, "lock-unique <loan-id> <borrower> <collection> <token-id>")
		printResult("loan_lockCollateralUnique", map[string]any{"loanId": parseID(args[1]), "borrower": args[2], "token": args[3], "tokenId": parseID(args[4])})
	case "drawdown":
		requireArgs(args, 5, "drawdown <loan-id> <borrower> <token> <amount>")
		printResult("loan_drawdown", map[string]any{"loanId": parseID(args[1]), "caller": args[2], "token": args[3], "amount": args[4]})
	case "repay":
		requireArgs(args, 5, "repay <loan-id> <borrower> <token> <amount>")
		printResult("loan_repay", map[string]any{"loanId": parseID(args[1]), "caller": args[2], "token": args[3], "amount": args[4]})
	case "distribute":
		requireArgs(args, 4, "distribute <loan-id> <caller> <token>")
		printResult("loan_distribute", map[string]any{"loanId": parseID(args[1]), "caller": args[2], "token": args[3]})
	case "close":
		requireArgs(args, 3, "close <loan-id> <caller>")
		printResult("loan_close", map[string]any{"loanId": parseID(args[1]), "caller": args[2]})
	case "default":
		requireArgs(args, 2, "default <loan-id>")
		printResult("loan_markDefault", map[string]any{"loanId": parseID(args[1])})
	case "seize":
		requireArgs(args, 2, "seize <loan-id>")
		printResult("loan_seize", map[string]any{"loanId": parseID(args[1])})
	case "cancel":
		requireArgs(args, 2, "cancel <loan-id>")
		printResult("loan_cancel", map[string]any{"loanId": parseID(args[1])})
	case "exposure":
		requireArgs(args, 2, "exposure <loan-id>")
		printResult("loan_exposure", map[string]any{"loanId": parseID(args[1])})
	default:
		printUsage()
		os.Exit(1)
	}
}

func defaultRPCEndpoint() string {
	if v := strings.TrimSpace(os.Getenv("RPC_URL")); v != "" {
		return v
	}
	return "http://localhost:8645"
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
		if strings.HasPrefix(arg, "--rpc=") {
			rpcEndpoint = strings.TrimPrefix(arg, "--rpc=")
			continue
		}
		out = append(out, arg)
	}
	return out, nil
}

func requireArgs(args []string, n int, usage string) {
	if len(args) < n {
		fmt.Fprintf(os.Stderr, "Usage: loanctl %s\n", usage)
		os.Exit(1)
	}
}

func parseID(s string) uint64 {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid number %q\n", s)
		os.Exit(1)
	}
	return v
}

func generateKey() {
	if _, err := os.Stat(defaultKeyFile); err == nil {
		fmt.Fprintf(os.Stderr, "Error: %s already exists; move it aside before generating a new key\n", defaultKeyFile)
		os.Exit(1)
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating key: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(defaultKeyFile, []byte(hex.EncodeToString(key.Bytes())), 0o600); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing key file: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("New key saved to %s\n", defaultKeyFile)
	fmt.Printf("Address: %s\n", key.PubKey().Address().String())
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      int    `json:"id"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func printResult(method string, params map[string]any) {
	result, err := call(method, params)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, result, "", "  "); err != nil {
		fmt.Println(string(result))
		return
	}
	fmt.Println(pretty.String())
}

func call(method string, params map[string]any) (json.RawMessage, error) {
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  []any{params},
		ID:      1,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, rpcEndpoint, bytes.NewBuffer(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(rpcAuthToken) != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(rpcAuthToken))
	}
	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	decoded := &rpcResponse{}
	if err := json.Unmarshal(body, decoded); err != nil {
		return nil, fmt.Errorf("malformed response: %w", err)
	}
	if decoded.Error != nil {
		return nil, fmt.Errorf("rpc error %d: %s", decoded.Error.Code, decoded.Error.Message)
	}
	return decoded.Result, nil
}

func printUsage() {
	fmt.Println("Usage: loanctl [--rpc <url>] <command> [arguments]")
	fmt.Println()
	fmt.Println("Admin commands (default, seize, cancel) require LOANCHAIN_RPC_TOKEN in the environment.")
	fmt.Println("Commands:")
	fmt.Println("  generate-key                                        - Generate a signing key and save it to wallet.key")
	fmt.Println("  propose <borrower> <token> <principal> <rate-bps> <maturity> [min-commitment]")
	fmt.Println("  join <loan-id> <lender> <commitment>                - Commit to an open syndication")
	fmt.Println("  close-book <loan-id> <caller>                       - Close the commitment book")
	fmt.Println("  approve <symbol> <owner> <spender> <amount>         - Authorize the vault to pull funds")
	fmt.Println("  contribute <loan-id> <lender> <token> <amount>      - Fund part of a commitment")
	fmt.Println("  lock-collateral <loan-id> <borrower> <token> <amt>  - Lock fungible collateral")
	fmt.Println("  lock-unique <loan-id> <borrower> <coll> <token-id>  - Lock a unique token")
	fmt.Println("  drawdown <loan-id> <borrower> <token> <amount>      - Release funded principal")
	fmt.Println("  repay <loan-id> <borrower> <token> <amount>         - Repay into the distribution pool")
	fmt.Println("  distribute <loan-id> <caller> <token>               - Pay out pro rata to lenders")
	fmt.Println("  close <loan-id> <caller>                            - Settle a fully repaid loan")
	fmt.Println("  default <loan-id>                                   - Mark a matured loan defaulted (admin)")
	fmt.Println("  seize <loan-id>                                     - Seize and distribute collateral (admin)")
	fmt.Println("  cancel <loan-id>                                    - Cancel a syndication (admin)")
	fmt.Println("  get <loan-id> | participants <loan-id> | collateral <loan-id> | exposure <loan-id> | events [limit] | balance <symbol> <addr>")
}
