package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the session
// token on outbound requests.
const AccessTokenHeaderName = "access_token"

// RootID is the parent sentinel for top-level items of every user.
const RootID = "root"
