// Package service contains the business logic.
//
// It sits between the handler layer and the board client.
// It receives spooled form data from the handler, validates it
// into a Submission, and runs the ordered sequence of board
// calls that creates, labels and fills the card.
package service
