package rpcerrors

// Family groups kinds by the layer that produced them.
type Family string

const (
	FamilyTransport Family = "transport"
	FamilyProvider  Family = "provider"
	FamilyAction    Family = "action"
)

// Kind identifies one entry of the closed error taxonomy. A Kind is itself an
// error so callers can write errors.Is(err, rpcerrors.RpcTimeout).
type Kind int

const (
	// Internal is also the fallback for causes the table does not know.
	Internal Kind = iota
	RpcUnavailable
	Transport

	// Provider kinds, keyed by error.cause.name.
	UnknownBlock
	InvalidAccount
	UnknownAccount
	NoContractCode
	TooLargeContractState
	UnavailableShard
	NoSyncedBlocks
	NotSyncedYet
	InvalidTransaction
	RpcTimeout
	UnknownAccessKey
	UnknownTransaction
	UnknownChunk
	ParseError

	// Wrappers met on the way down an error body.
	TxExecutionError
	InvalidTxError
	InvalidTx
	ActionError
	InvalidAccessKeyError
	ActionsValidation

	// Invalid transaction details.
	InvalidSignerId
	SignerDoesNotExist
	InvalidNonce
	NonceTooLarge
	InvalidReceiverId
	InvalidSignature
	NotEnoughBalance
	LackBalanceForState
	CostOverflow
	InvalidChain
	Expired
	TransactionSizeExceeded
	ShardCongested
	ShardStuck
	AccessKeyNotFound
	ReceiverMismatch
	MethodNameMismatch
	RequiresFullAccess
	NotEnoughAllowance
	DepositWithFunctionCall

	// Action errors reported by receipts.
	AccountAlreadyExists
	AccountDoesNotExist
	CreateAccountOnlyByRegistrar
	CreateAccountNotAllowed
	ActorNoPermission
	DeleteKeyDoesNotExist
	AddKeyAlreadyExists
	DeleteAccountStaking
	DeleteAccountHasRent
	RentUnpaid
	TriesToUnstake
	TriesToStake
	InsufficientStake
	FunctionCallError
	ExecutionError
	NewReceiptValidationError
	OnlyImplicitAccountCreationAllowed
	DeleteAccountWithLargeState
	DelegateActionInvalidSignature
	DelegateActionSenderDoesNotMatchTxReceiver
	DelegateActionExpired
	DelegateActionAccessKeyError
	DelegateActionInvalidNonce
	DelegateActionNonceTooLarge
)

type kindInfo struct {
	name   string
	family Family
}

// kindInfos is the single source of truth for names and families. Action
// kinds are named after the body key the server uses for them.
var kindInfos = map[Kind]kindInfo{
	Internal:       {"InternalError", FamilyProvider},
	RpcUnavailable: {"RpcNotAvailable", FamilyTransport},
	Transport:      {"TransportError", FamilyTransport},

	UnknownBlock:          {"UnknownBlockError", FamilyProvider},
	InvalidAccount:        {"InvalidAccount", FamilyProvider},
	UnknownAccount:        {"UnknownAccount", FamilyProvider},
	NoContractCode:        {"NoContractCodeError", FamilyProvider},
	TooLargeContractState: {"TooLargeContractStateError", FamilyProvider},
	UnavailableShard:      {"UnavailableShardError", FamilyProvider},
	NoSyncedBlocks:        {"NoSyncedBlocksError", FamilyProvider},
	NotSyncedYet:          {"NotSyncedYetError", FamilyProvider},
	InvalidTransaction:    {"InvalidTransactionError", FamilyProvider},
	RpcTimeout:            {"RPCTimeoutError", FamilyProvider},
	UnknownAccessKey:      {"UnknownAccessKeyError", FamilyProvider},
	UnknownTransaction:    {"UnknownTransactionError", FamilyProvider},
	UnknownChunk:          {"UnknownChunkError", FamilyProvider},
	ParseError:            {"ParseError", FamilyProvider},

	TxExecutionError:      {"TxExecutionError", FamilyAction},
	InvalidTxError:        {"InvalidTxError", FamilyAction},
	InvalidTx:             {"InvalidTx", FamilyAction},
	ActionError:           {"ActionError", FamilyAction},
	InvalidAccessKeyError: {"InvalidAccessKeyError", FamilyAction},
	ActionsValidation:     {"ActionsValidation", FamilyAction},

	InvalidSignerId:         {"InvalidSignerId", FamilyAction},
	SignerDoesNotExist:      {"SignerDoesNotExist", FamilyAction},
	InvalidNonce:            {"InvalidNonce", FamilyAction},
	NonceTooLarge:           {"NonceTooLarge", FamilyAction},
	InvalidReceiverId:       {"InvalidReceiverId", FamilyAction},
	InvalidSignature:        {"InvalidSignature", FamilyAction},
	NotEnoughBalance:        {"NotEnoughBalance", FamilyAction},
	LackBalanceForState:     {"LackBalanceForState", FamilyAction},
	CostOverflow:            {"CostOverflow", FamilyAction},
	InvalidChain:            {"InvalidChain", FamilyAction},
	Expired:                 {"Expired", FamilyAction},
	TransactionSizeExceeded: {"TransactionSizeExceeded", FamilyAction},
	ShardCongested:          {"ShardCongested", FamilyAction},
	ShardStuck:              {"ShardStuck", FamilyAction},
	AccessKeyNotFound:       {"AccessKeyNotFound", FamilyAction},
	ReceiverMismatch:        {"ReceiverMismatch", FamilyAction},
	MethodNameMismatch:      {"MethodNameMismatch", FamilyAction},
	RequiresFullAccess:      {"RequiresFullAccess", FamilyAction},
	NotEnoughAllowance:      {"NotEnoughAllowance", FamilyAction},
	DepositWithFunctionCall: {"DepositWithFunctionCall", FamilyAction},

	AccountAlreadyExists:                       {"AccountAlreadyExists", FamilyAction},
	AccountDoesNotExist:                        {"AccountDoesNotExist", FamilyAction},
	CreateAccountOnlyByRegistrar:               {"CreateAccountOnlyByRegistrar", FamilyAction},
	CreateAccountNotAllowed:                    {"CreateAccountNotAllowed", FamilyAction},
	ActorNoPermission:                          {"ActorNoPermission", FamilyAction},
	DeleteKeyDoesNotExist:                      {"DeleteKeyDoesNotExist", FamilyAction},
	AddKeyAlreadyExists:                        {"AddKeyAlreadyExists", FamilyAction},
	DeleteAccountStaking:                       {"DeleteAccountStaking", FamilyAction},
	DeleteAccountHasRent:                       {"DeleteAccountHasRent", FamilyAction},
	RentUnpaid:                                 {"RentUnpaid", FamilyAction},
	TriesToUnstake:                             {"TriesToUnstake", FamilyAction},
	TriesToStake:                               {"TriesToStake", FamilyAction},
	InsufficientStake:                          {"InsufficientStake", FamilyAction},
	FunctionCallError:                          {"FunctionCallError", FamilyAction},
	ExecutionError:                             {"ExecutionError", FamilyAction},
	NewReceiptValidationError:                  {"NewReceiptValidationError", FamilyAction},
	OnlyImplicitAccountCreationAllowed:         {"OnlyImplicitAccountCreationAllowed", FamilyAction},
	DeleteAccountWithLargeState:                {"DeleteAccountWithLargeState", FamilyAction},
	DelegateActionInvalidSignature:             {"DelegateActionInvalidSignature", FamilyAction},
	DelegateActionSenderDoesNotMatchTxReceiver: {"DelegateActionSenderDoesNotMatchTxReceiver", FamilyAction},
	DelegateActionExpired:                      {"DelegateActionExpired", FamilyAction},
	DelegateActionAccessKeyError:               {"DelegateActionAccessKeyError", FamilyAction},
	DelegateActionInvalidNonce:                 {"DelegateActionInvalidNonce", FamilyAction},
	DelegateActionNonceTooLarge:                {"DelegateActionNonceTooLarge", FamilyAction},
}

// providerCauses maps error.cause.name to a provider kind.
var providerCauses = map[string]Kind{
	"UNKNOWN_BLOCK":            UnknownBlock,
	"INVALID_ACCOUNT":          InvalidAccount,
	"UNKNOWN_ACCOUNT":          UnknownAccount,
	"NO_CONTRACT_CODE":         NoContractCode,
	"TOO_LARGE_CONTRACT_STATE": TooLargeContractState,
	"UNAVAILABLE_SHARD":        UnavailableShard,
	"NO_SYNCED_BLOCKS":         NoSyncedBlocks,
	"INTERNAL_ERROR":           Internal,
	"NOT_SYNCED_YET":           NotSyncedYet,
	"INVALID_TRANSACTION":      InvalidTransaction,
	"TIMEOUT_ERROR":            RpcTimeout,
	"UNKNOWN_ACCESS_KEY":       UnknownAccessKey,
	"UNKNOWN_TRANSACTION":      UnknownTransaction,
	"UNKNOWN_CHUNK":            UnknownChunk,
	"PARSE_ERROR":              ParseError,
}

// actionKeys maps an error body key to its action kind. Built once from
// kindInfos.
var actionKeys = func() map[string]Kind {
	m := make(map[string]Kind)
	for k, info := range kindInfos {
		if info.family == FamilyAction {
			m[info.name] = k
		}
	}
	return m
}()

func (k Kind) String() string {
	if info, ok := kindInfos[k]; ok {
		return info.name
	}
	return "UnknownKind"
}

// Family reports the layer a kind belongs to.
func (k Kind) Family() Family {
	if info, ok := kindInfos[k]; ok {
		return info.family
	}
	return FamilyProvider
}

func (k Kind) Error() string { return k.String() }

// KindForCause returns the provider kind registered for a cause name, or
// Internal.
func KindForCause(cause string) Kind {
	if k, ok := providerCauses[cause]; ok {
		return k
	}
	return Internal
}

// KindForKey returns the action kind registered for an error body key.
func KindForKey(key string) (Kind, bool) {
	k, ok := actionKeys[key]
	return k, ok
}
