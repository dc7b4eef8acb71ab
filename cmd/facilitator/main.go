// Command facilitator runs the x402 facilitator service.
//
// Configuration comes from the environment (a local .env file is loaded when
// present):
//
//	PORT                  listen port (default 8080)
//	BEARER_TOKEN          optional API token required on every endpoint
//	EVM_PRIVATE_KEY       facilitator operator key (hex)
//	NETWORKS              comma-separated CAIP-2 networks, e.g. "eip155:56,eip155:8453"
//	RPC_URL_<chainId>     RPC endpoint per network, e.g. RPC_URL_56
//	PAYMASTER_URL         optional gas sponsor endpoint (enables BSC gasless path)
//	PAYMASTER_POLICY_UUID sponsorship policy id
//	SCAN_URL              telemetry endpoint override; "off" disables the sink
//	REDIS_ADDR            optional Redis address for shared settlement idempotency
//	DEPLOY_ERC4337        "true" to deploy smart wallets from ERC-6492 signatures
package main

import (
	"log"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	x402 "github.com/aeon-xyz/x402-go"
	exactfacilitator "github.com/aeon-xyz/x402-go/mechanisms/evm/exact/facilitator"
	"github.com/aeon-xyz/x402-go/paymaster"
	"github.com/aeon-xyz/x402-go/scan"
	"github.com/aeon-xyz/x402-go/service"
	signers "github.com/aeon-xyz/x402-go/signers/evm"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("skipping .env: %v", err)
	}

	privateKey := os.Getenv("EVM_PRIVATE_KEY")
	if privateKey == "" {
		log.Fatal("EVM_PRIVATE_KEY is required")
	}

	networks := strings.Split(envOr("NETWORKS", "eip155:56"), ",")

	var sponsorClient *paymaster.Client
	if sponsorURL := os.Getenv("PAYMASTER_URL"); sponsorURL != "" {
		policyID, err := uuid.Parse(envOr("PAYMASTER_POLICY_UUID", uuid.Nil.String()))
		if err != nil {
			log.Fatalf("invalid PAYMASTER_POLICY_UUID: %v", err)
		}
		sponsorClient = paymaster.NewClient(sponsorURL, policyID)
	}

	var sink *scan.Sink
	if scanURL := os.Getenv("SCAN_URL"); scanURL != "off" {
		sink = scan.NewSink(scanURL)
		defer sink.Close()
	}

	deployWallets := envOr("DEPLOY_ERC4337", "false") == "true"

	registry := x402.NewFacilitator()
	for _, network := range networks {
		network = strings.TrimSpace(network)
		if network == "" {
			continue
		}
		chainRef := network
		if idx := strings.Index(network, ":"); idx >= 0 {
			chainRef = network[idx+1:]
		}
		rpcURL := os.Getenv("RPC_URL_" + chainRef)
		if rpcURL == "" {
			log.Fatalf("RPC_URL_%s is required for network %s", chainRef, network)
		}

		signer, err := signers.NewFacilitatorSignerFromURL(privateKey, rpcURL)
		if err != nil {
			log.Fatalf("failed to create signer for %s: %v", network, err)
		}

		opts := []exactfacilitator.Option{
			exactfacilitator.WithERC4337Deployment(deployWallets),
		}
		if sponsorClient != nil {
			opts = append(opts, exactfacilitator.WithPaymaster(sponsorClient))
		}
		if sink != nil {
			opts = append(opts, exactfacilitator.WithScanSink(sink))
		}

		registry.Register(x402.Network(network), exactfacilitator.NewExactEvmFacilitator(signer, opts...))
		log.Printf("registered exact-evm mechanism for %s via %s", network, rpcURL)
	}

	serviceOpts := []service.ServiceOption{}
	if token := os.Getenv("BEARER_TOKEN"); token != "" {
		serviceOpts = append(serviceOpts, service.WithBearerToken(token))
	}
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: redisAddr})
		serviceOpts = append(serviceOpts, service.WithSettlementStore(service.NewRedisStore(client)))
	}

	svc := service.NewService(registry, serviceOpts...)

	addr := ":" + envOr("PORT", "8080")
	log.Printf("facilitator listening on %s", addr)
	if err := svc.Run(addr); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
