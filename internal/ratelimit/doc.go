// Package ratelimit is per client ip token bucket limiting for the auth
// endpoints, where it slows password guessing.
//
// State is in memory and per instance. It does not stop attacks spread
// over many addresses; put an upstream WAF in front for that.
package ratelimit
