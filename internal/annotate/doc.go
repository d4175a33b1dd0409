// Package annotate turns an annotated table into an article body with
// stable global token indexes and a list of comments anchored to them.
//
// The steps are Group (collapse raw rows and assign token ranges), Assemble
// (build the article content) and Expand (resolve markers to comments once
// the article has an identifier). All functions are pure; persistence is
// left to the caller.
package annotate
