// Package domain defines shared domain constants and types.
package domain

// User-facing reply strings.
const (
	MsgNoServices     = "Oops! It seems like there are no services serving that bus stop. Are you sure you entered it correctly?"
	MsgNotInOperation = "Not in operation"
	MsgSendBusStop    = "Alright, send me a bus stop code to fetch etas for, optionally including a service number separated by a space."
	MsgInvalidRequest = "I'm sorry, I didn't recognise what you said."
)
