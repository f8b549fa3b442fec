// Package radio provides implementations of the bcp.Radio contract: a
// simulated in-process medium for tests and demonstrations, and a real
// UDP-based transport for deploying BCP nodes as separate processes on a
// real network.
package radio
