// Package embargo decides who may see which data product.
//
// Every artifact (observation, ephemeris, template, ToA bundle, pipeline image or
// file) reduces to an embargo subject: a project and a reference timestamp. An
// artifact is embargoed while now < reference + project embargo period. Superusers
// see everything, anyone sees data whose embargo has lapsed, and embargoed data is
// visible only to active members of the subject's project.
//
// On top of that single rule the package provides most-recent-accessible selection
// (newest visible version of an ephemeris or template, falling back to older public
// versions) and the two-gate ToA resolver used by downloads.
//
// Decisions are made against a Principal that is built once per request and never
// re-read, so a long archive stream is evaluated against one membership snapshot.
package embargo
