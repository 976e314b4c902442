/*
SPDX-License-Identifier: Apache-2.0
*/

package auction

import (
	"encoding/json"
	"fmt"

	"github.com/golang/protobuf/ptypes"
	"github.com/google/uuid"
	"github.com/hyperledger/fabric-chaincode-go/shim"
	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/hyperledger/fabric-samples/auction/royalty-dutch-auction/chaincode-go/internal/fault"
	"github.com/hyperledger/fabric-samples/auction/royalty-dutch-auction/chaincode-go/internal/protocol"
)

// instanceNamespace seeds the ids of instances created without a name
var instanceNamespace = uuid.MustParse("8a4c3d52-1e0f-4b8e-9c57-3f6a2d91b0e4")

// instanceKey gets a world state key from the instance id
func instanceKey(id string) string {
	return fmt.Sprintf("instance %s", id)
}

// instanceIDFor derives a deterministic instance id from the creating transaction
func instanceIDFor(txID string) string {
	return uuid.NewSHA1(instanceNamespace, []byte(txID)).String()
}

// txState buffers world state writes for one transaction. Fabric does not
// return a transaction's own writes from GetState, and a rejected transition
// must leave nothing behind, so reads check the buffer first and writes only
// reach the stub on flush.
type txState struct {
	stub   shim.ChaincodeStubInterface
	writes map[string][]byte
	order  []string
}

func newTxState(stub shim.ChaincodeStubInterface) *txState {
	return &txState{stub: stub, writes: make(map[string][]byte)}
}

func (s *txState) get(key string) ([]byte, error) {
	if v, ok := s.writes[key]; ok {
		return v, nil
	}
	return s.stub.GetState(key)
}

func (s *txState) put(key string, value []byte) {
	if _, ok := s.writes[key]; !ok {
		s.order = append(s.order, key)
	}
	s.writes[key] = value
}

func (s *txState) flush() error {
	for _, key := range s.order {
		if err := s.stub.PutState(key, s.writes[key]); err != nil {
			return fmt.Errorf("failed to write %q: %w", key, err)
		}
	}
	s.writes = make(map[string][]byte)
	s.order = nil
	return nil
}

// doesInstanceExist checks if an instance with the given id exists in the world state
func doesInstanceExist(state *txState, id string) (bool, error) {
	instanceBin, err := state.get(instanceKey(id))
	if err != nil {
		return false, err
	}
	return instanceBin != nil, nil
}

// getInstance retrieves the instance with the given id from the world state
func getInstance(state *txState, id string) (*protocol.Instance, error) {
	instanceBin, errGetState := state.get(instanceKey(id))
	if errGetState != nil {
		return nil, fmt.Errorf("failed to read instance %s: %w", id, errGetState)
	}
	if instanceBin == nil {
		return nil, fault.New(fault.NotFound, "", "instance %s does not exist", id)
	}
	var instance protocol.Instance
	if err := json.Unmarshal(instanceBin, &instance); err != nil {
		return nil, fmt.Errorf("failed to decode instance %s: %w", id, err)
	}
	return &instance, nil
}

// putInstance saves the given instance in the transaction's write buffer
func putInstance(state *txState, instance *protocol.Instance) error {
	instanceBin, err := json.Marshal(instance)
	if err != nil {
		return err
	}
	state.put(instanceKey(instance.ID), instanceBin)
	return nil
}

// setInstanceSummaryEvent sets an event about the current instance status which can be received by contract users
func setInstanceSummaryEvent(ctx contractapi.TransactionContextInterface, summary *InstanceSummary) error {
	if summary == nil {
		return fmt.Errorf("summary cannot be nil")
	}
	summaryBin, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	return ctx.GetStub().SetEvent(instanceKey(summary.ID), summaryBin)
}

// txTime returns the transaction timestamp in unix seconds. Every endorser
// sees the same value, unlike the local clock.
func txTime(ctx contractapi.TransactionContextInterface) (int64, error) {
	ts, err := ctx.GetStub().GetTxTimestamp()
	if err != nil {
		return 0, fmt.Errorf("failed to read transaction timestamp: %w", err)
	}
	t, err := ptypes.Timestamp(ts)
	if err != nil {
		return 0, fmt.Errorf("invalid transaction timestamp: %w", err)
	}
	return t.Unix(), nil
}
