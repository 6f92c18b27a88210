// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package ai

// CategoryDescriptions explains each category to the model, in prompt order.
var CategoryDescriptions = [][2]string{
	{"business", "professional correspondence, partnerships, meetings, contracts"},
	{"personal", "friends, family, non-work matters"},
	{"support", "customer problems, bug reports, how-to questions"},
	{"sales", "pricing requests, quotes, demos, purchase inquiries"},
	{"invoice", "bills, payment requests, receipts, statements"},
	{"newsletter", "bulk mailings, digests, marketing updates"},
	{"spam", "unsolicited, deceptive, or malicious mail"},
	{"urgent", "anything demanding immediate action"},
	{"other", "none of the above"},
}

// FactNames lists the fact keys the model is asked to extract.
var FactNames = []string{
	"amount",
	"currency",
	"deadline",
	"invoice_number",
	"vendor",
	"meeting_request",
	"action_required",
}
