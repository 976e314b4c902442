/*
SPDX-License-Identifier: Apache-2.0
*/

package auction

import (
	"crypto/x509"
	"encoding/hex"
	"fmt"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"golang.org/x/crypto/sha3"
)

// addressLength is the number of hash bytes kept for a client address
const addressLength = 20

func getSubmittingClientIdentity(ctx contractapi.TransactionContextInterface) (*x509.Certificate, error) {
	cert, err := ctx.GetClientIdentity().GetX509Certificate()
	if err != nil {
		return nil, fmt.Errorf("failed to read clientID: %w", err)
	}
	if cert == nil {
		return nil, fmt.Errorf("client identity has no certificate")
	}
	return cert, nil
}

// certAddress derives a ledger address from a DER certificate: the hex of the
// first 20 bytes of its SHA3-256 hash
func certAddress(cert *x509.Certificate) string {
	sum := sha3.Sum256(cert.Raw)
	return hex.EncodeToString(sum[:addressLength])
}

// clientAddress is the ledger address of the submitting client
func clientAddress(ctx contractapi.TransactionContextInterface) (string, error) {
	cert, err := getSubmittingClientIdentity(ctx)
	if err != nil {
		return "", err
	}
	return certAddress(cert), nil
}
