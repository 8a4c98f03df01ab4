// Package errors provides structured error handling for diplomacy services.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Relation errors
	CodeRelationSelf          Code = "RELATION_SELF"
	CodeRelationConflict      Code = "RELATION_CONFLICT"
	CodeRelationInvalidType   Code = "RELATION_INVALID_TYPE"
	CodeRelationTruceNoExpiry Code = "RELATION_TRUCE_NO_EXPIRY"
	CodeRelationInvalidChange Code = "RELATION_INVALID_CHANGE"

	// Request errors
	CodeRequestDuplicate      Code = "REQUEST_DUPLICATE"
	CodeRequestExpired        Code = "REQUEST_EXPIRED"
	CodeRequestNotPending     Code = "REQUEST_NOT_PENDING"
	CodeRequestWrongGuild     Code = "REQUEST_WRONG_GUILD"
	CodeRequestInvalidType    Code = "REQUEST_INVALID_TYPE"
	CodeRequestMessageTooLong Code = "REQUEST_MESSAGE_TOO_LONG"

	// War errors
	CodeWarAlreadyExists      Code = "WAR_ALREADY_EXISTS"
	CodeWarNoObjectives       Code = "WAR_NO_OBJECTIVES"
	CodeWarTooManyObjectives  Code = "WAR_TOO_MANY_OBJECTIVES"
	CodeWarInvalidObjective   Code = "WAR_INVALID_OBJECTIVE"
	CodeWarLimitReached       Code = "WAR_LIMIT_REACHED"
	CodeWarNotProposed        Code = "WAR_NOT_PROPOSED"
	CodeWarNotActive          Code = "WAR_NOT_ACTIVE"
	CodeWarAlreadyEnded       Code = "WAR_ALREADY_ENDED"
	CodeWarDeclarationExpired Code = "WAR_DECLARATION_EXPIRED"
	CodeWarWrongGuild         Code = "WAR_WRONG_GUILD"
	CodeWarSelf               Code = "WAR_SELF"

	// Peace errors
	CodePeacePendingExists   Code = "PEACE_PENDING_EXISTS"
	CodePeaceNotPending      Code = "PEACE_NOT_PENDING"
	CodePeaceWrongGuild      Code = "PEACE_WRONG_GUILD"
	CodePeaceEmptyTerms      Code = "PEACE_EMPTY_TERMS"
	CodePeaceInvalidOffering Code = "PEACE_INVALID_OFFERING"

	// Port errors
	CodePermissionDenied Code = "PERMISSION_DENIED"
	CodeEscrowFailure    Code = "ESCROW_FAILURE"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeRelationSelf,
		CodeRelationInvalidType,
		CodeRelationTruceNoExpiry,
		CodeRequestInvalidType,
		CodeRequestMessageTooLong,
		CodeWarNoObjectives,
		CodeWarTooManyObjectives,
		CodeWarInvalidObjective,
		CodeWarSelf,
		CodePeaceEmptyTerms,
		CodePeaceInvalidOffering:
		return codes.InvalidArgument

	// AlreadyExists - a conflicting record is already present
	case CodeRelationConflict,
		CodeRequestDuplicate,
		CodeWarAlreadyExists,
		CodePeacePendingExists:
		return codes.AlreadyExists

	// FailedPrecondition - state doesn't allow operation
	case CodeRelationInvalidChange,
		CodeRequestExpired,
		CodeRequestNotPending,
		CodeRequestWrongGuild,
		CodeWarLimitReached,
		CodeWarNotProposed,
		CodeWarNotActive,
		CodeWarAlreadyEnded,
		CodeWarDeclarationExpired,
		CodeWarWrongGuild,
		CodePeaceNotPending,
		CodePeaceWrongGuild:
		return codes.FailedPrecondition

	// NotFound - resource doesn't exist
	case CodeNotFound:
		return codes.NotFound

	case CodePermissionDenied:
		return codes.PermissionDenied

	case CodeEscrowFailure:
		return codes.Aborted

	default:
		return codes.Internal
	}
}
