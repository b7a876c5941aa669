package protocol

// Correlated message types. Each request is answered by exactly one
// response carrying the same id.
const (
	TypeTimeRequest     = "timeRequest"
	TypeDownloadLog     = "downloadLog"
	TypeGetEnvValues    = "getEnvValues"
	TypeSetEnvValue     = "setEnvValue"
	TypeStartProcess    = "startProcess"
	TypeInstallAsset    = "installAsset"
	TypeInstallPatch    = "installPatch"
	TypeJobStatus       = "jobStatus"
	TypeTest            = "test"
	TypeRestartServer   = "restartServer"
	TypeShutdownServer  = "shutdownServer"
	TypeGetUserAccounts = "getUserAccounts"
	TypeGetSecret       = "getSecret"
	TypeSwitchDevice    = "switchDevice"
	TypeError           = "error"
)

// Subscription message types, pushed by the server without a request.
const (
	TypeLog         = "log"
	TypeJobProgress = "jobProgress"
	TypeJobComplete = "jobComplete"
)

// Kind tells how a message type is routed.
type Kind int

const (
	KindUnknown Kind = iota
	KindCorrelated
	KindSubscription
)

func (k Kind) String() string {
	switch k {
	case KindCorrelated:
		return "correlated"
	case KindSubscription:
		return "subscription"
	default:
		return "unknown"
	}
}

var catalog = map[string]Kind{
	TypeTimeRequest:     KindCorrelated,
	TypeDownloadLog:     KindCorrelated,
	TypeGetEnvValues:    KindCorrelated,
	TypeSetEnvValue:     KindCorrelated,
	TypeStartProcess:    KindCorrelated,
	TypeInstallAsset:    KindCorrelated,
	TypeInstallPatch:    KindCorrelated,
	TypeJobStatus:       KindCorrelated,
	TypeTest:            KindCorrelated,
	TypeRestartServer:   KindCorrelated,
	TypeShutdownServer:  KindCorrelated,
	TypeGetUserAccounts: KindCorrelated,
	TypeGetSecret:       KindCorrelated,
	TypeSwitchDevice:    KindCorrelated,
	TypeError:           KindCorrelated,

	TypeLog:         KindSubscription,
	TypeJobProgress: KindSubscription,
	TypeJobComplete: KindSubscription,
}

// KindOf returns the routing kind of a message type.
func KindOf(msgType string) Kind {
	return catalog[msgType]
}

// IsCorrelated reports whether inbound messages of this type resolve a
// pending request. The catch-all error type is correlated.
func IsCorrelated(msgType string) bool {
	return catalog[msgType] == KindCorrelated
}

// IsSubscription reports whether msgType is a server-pushed event type.
func IsSubscription(msgType string) bool {
	return catalog[msgType] == KindSubscription
}

// Known reports whether msgType belongs to the closed set shared by both sides.
func Known(msgType string) bool {
	_, ok := catalog[msgType]
	return ok
}
