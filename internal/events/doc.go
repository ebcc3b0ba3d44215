// Package events connects the crypto core to chat events: message content
// dispatch by msgtype, file source descriptors that are either a plain URL
// or encrypted file metadata, and Olm-encrypted events.
package events
