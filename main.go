package main

import (
	"log"
	"os"

	"github.com/hyperledger/fabric-chaincode-go/shim"
	"github.com/hyperledger/fabric-contract-api-go/contractapi"

	"github.com/agritrade/chaincode/agritrade/contracts"
)

func main() {
	// One chaincode composes the three core contracts
	chaincode, err := contractapi.NewChaincode(
		&contracts.BatchRegistryContract{},
		&contracts.ShipmentTrackerContract{},
		&contracts.TransactionManagerContract{},
	)
	if err != nil {
		log.Fatalf("Error creating agritrade chaincode: %v", err)
	}

	// Run as an external chaincode service when configured
	if address := os.Getenv("CHAINCODE_SERVER_ADDRESS"); address != "" {
		server := &shim.ChaincodeServer{
			CCID:    os.Getenv("CHAINCODE_ID"),
			Address: address,
			CC:      chaincode,
			TLSProps: shim.TLSProperties{
				Disabled: true,
			},
		}
		if err := server.Start(); err != nil {
			log.Fatalf("Error starting agritrade chaincode server: %v", err)
		}
		return
	}

	if err := chaincode.Start(); err != nil {
		log.Fatalf("Error starting agritrade chaincode: %v", err)
	}
}
