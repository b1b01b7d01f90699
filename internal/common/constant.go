package common

// AuthorizationHeaderName carries the bearer session token on REST requests.
const AuthorizationHeaderName = "Authorization"

// BearerPrefix precedes the token inside the Authorization header.
const BearerPrefix = "Bearer "
