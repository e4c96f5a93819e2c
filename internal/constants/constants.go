package constants

import "time"

const (
	AppName      = "quantum-dex-client"
	WalletFile   = "wallet.json"
	NetworksFile = "networks.json"

	SchemaV1      = 1
	FilePerm      = 0o600
	DirectoryPerm = 0o700

	// NativeAddr is the sentinel asset id for a chain's native currency.
	NativeAddr = "0x0000000000000000000000000000000000000000"

	NativeDecimals = 18

	// AAD const for the local wallet file
	AADConstant = "quantum-dex-client:localwallet:v1"

	DefaultHistoryMaxBlocks  = 100
	DefaultHistoryMaxRecords = 10
	DefaultScanConcurrency   = 8

	DefaultSlippageBps     = 50
	DefaultDeadlineSeconds = 1200
	MaxSlippageBps         = 10_000

	DefaultStatusPollInterval  = 15 * time.Second
	DefaultGatewayPollInterval = 2 * time.Second
	DefaultRequestTimeout      = 20 * time.Second
	DefaultReceiptPollInterval = 2 * time.Second

	StatusPollRetries = 2
)
