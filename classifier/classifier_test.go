// Copyright 2025 Dynamo Works
// SPDX-License-Identifier: Apache-2.0

package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify_CodeGeneration(t *testing.T) {
	c := Classify("write a function to debug this python code", "web")

	assert.Equal(t, CategoryCodeGeneration, c.Category)
	assert.Greater(t, c.Confidence, 0.0)
}

func TestClassify_DocumentCreation(t *testing.T) {
	c := Classify("draft a memo with an executive summary for the team", "web")

	assert.Equal(t, CategoryDocumentCreation, c.Category)
}

func TestClassify_BusinessDevelopment(t *testing.T) {
	c := Classify("review the statement of work for this rfp and our past performance", "web")

	assert.Equal(t, CategoryBusinessDevelopment, c.Category)
}

func TestClassify_HumanResources(t *testing.T) {
	c := Classify("write a job description for the new candidate onboarding role", "web")

	assert.Equal(t, CategoryHumanResources, c.Category)
}

func TestClassify_AccountingFinance(t *testing.T) {
	c := Classify("reconcile the ledger against the balance sheet and p&l", "web")

	assert.Equal(t, CategoryAccountingFinance, c.Category)
}

func TestClassify_FallbackGeneralQA(t *testing.T) {
	c := Classify("what is the weather like today", "web")

	assert.Equal(t, CategoryGeneralQA, c.Category)
	assert.Equal(t, 1.0, c.Confidence)
	assert.Empty(t, c.Secondary)
}

func TestClassify_CLIBias(t *testing.T) {
	// The literal scenario: a neutral prompt classifies as code generation
	// only because it arrived from a terminal
	cli := Classify("help me with this task", "cli")
	assert.Equal(t, CategoryCodeGeneration, cli.Category)

	web := Classify("help me with this task", "web")
	assert.Equal(t, CategoryGeneralQA, web.Category)
}

func TestClassify_ConfidenceSplit(t *testing.T) {
	// One code keyword vs one document keyword plus a phrase: document wins
	// and confidence reflects the split
	c := Classify("draft a memo about the api", "web")

	assert.Equal(t, CategoryDocumentCreation, c.Category)
	assert.Equal(t, CategoryCodeGeneration, c.Secondary)
	assert.Greater(t, c.Confidence, 0.5)
	assert.Less(t, c.Confidence, 1.0)
}

func TestClassify_NoSecondaryWhenSecondScoreZero(t *testing.T) {
	c := Classify("fix this bug", "web")

	assert.Equal(t, CategoryCodeGeneration, c.Category)
	assert.Equal(t, 1.0, c.Confidence)
	assert.Empty(t, c.Secondary)
}

func TestClassify_TieBreaksBySourceOrder(t *testing.T) {
	// One keyword from each of two categories: the earlier category in the
	// evaluation order wins the tie
	c := Classify("the document mentions a bug", "web")

	assert.Equal(t, CategoryCodeGeneration, c.Category)
	assert.Equal(t, CategoryDocumentCreation, c.Secondary)
	assert.Equal(t, 0.5, c.Confidence)
}

func TestClassify_NormalizationStripsPunctuation(t *testing.T) {
	c := Classify("Fix this bug!!! (it's in the code)", "web")

	assert.Equal(t, CategoryCodeGeneration, c.Category)
}
