// Package core defines the domain model shared by every IntelHive component:
// the session aggregate and its lifecycle states, conversation turns,
// extracted intelligence entities, classification state, the final report
// payload, the callback delivery record and the error taxonomy surfaced to
// API callers. It has no dependencies on other IntelHive packages so that
// leaf components (classifier, extractor, stores) can build on it freely.
package core
