package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/vultisig/trigger-plugin/config"
	"github.com/vultisig/trigger-plugin/internal/types"
)

var wallet string
var network string
var validateOnly bool

func prompt(reader *bufio.Reader, label string) string {
	fmt.Print(label)
	value, _ := reader.ReadString('\n')
	return strings.TrimSpace(value)
}

func main() {
	flag.StringVar(&wallet, "wallet", "", "wallet address placing the order")
	flag.StringVar(&network, "network", "ethereum", "network name")
	flag.BoolVar(&validateOnly, "validate", false, "only validate the order")
	flag.Parse()

	if wallet == "" {
		panic("wallet address is required")
	}

	cfg, err := config.ReadConfig("config", ".")
	if err != nil {
		panic(err)
	}

	reader := bufio.NewReader(os.Stdin)
	spec := types.OrderSpec{
		WalletAddress: wallet,
		Network:       network,
	}
	spec.Type = types.OrderType(strings.ToUpper(prompt(reader, "Enter order type (DCA or LIMIT): ")))
	spec.SourceAsset = prompt(reader, "Enter source token contract address: ")
	spec.DestinationAsset = prompt(reader, "Enter destination token contract address: ")
	spec.Amount = prompt(reader, "Enter the input amount for each swap: ")

	switch spec.Type {
	case types.OrderTypeDCA:
		spec.Frequency = types.Frequency(strings.ToUpper(prompt(reader, "Enter frequency (DAILY, WEEKLY, BIWEEKLY, MONTHLY): ")))
		total, err := strconv.Atoi(prompt(reader, "Enter total executions: "))
		if err != nil {
			panic(err)
		}
		spec.TotalExecutions = total
		spec.NextExecutionTime = time.Now().Add(20 * time.Second).Unix()
	case types.OrderTypeLimit:
		spec.TargetPrice = prompt(reader, "Enter target price: ")
		spec.Condition = types.Condition(strings.ToUpper(prompt(reader, "Enter condition (GREATER_THAN or LESS_THAN): ")))
		spec.ExpirationTime = time.Now().Add(24 * time.Hour).Unix()
	}

	reqBytes, err := json.Marshal(spec)
	if err != nil {
		panic(err)
	}
	fmt.Println("Order", string(reqBytes))

	pluginHost := fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port)
	path := "/orders"
	if validateOnly {
		path = "/orders/validate"
	}
	fmt.Printf("Sending order to plugin server: %s\n", pluginHost)

	resp, err := http.Post(pluginHost+path, "application/json", bytes.NewBuffer(reqBytes))
	if err != nil {
		panic(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	fmt.Printf("Request sent: %d\n%s\n", resp.StatusCode, string(body))
}
