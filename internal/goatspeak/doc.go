/*
Package goatspeak compiles the Goatspeak query language.

A query is a sequence of statements, each terminated by ';':

	SCRAPE 2 p IF @class = 'lead' IN section;
	EXTRACT @href, body --no-children;
	OUTPUT json --filename links;

Lex turns text into tokens, Parse turns tokens into Instructions and
Evaluate tests a Condition against a tree node. Compile runs Lex and Parse
in one step.

Errors are *LexicalError, *SyntaxError and *ConfigurationError, matched with
errors.Is against ErrLexical, ErrSyntax and ErrConfiguration.
*/
package goatspeak
