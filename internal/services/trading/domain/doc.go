// Package domain defines the trading engine's assets, offers, trades,
// ownership records and the typed errors shared by every trading component.
package domain
